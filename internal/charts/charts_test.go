package charts

import (
	"bytes"
	"testing"
	"time"

	"finova/internal/core"
)

func record(day int, amount string) core.Record {
	a, err := core.ParseAmount(amount)
	if err != nil {
		panic(err)
	}
	return core.Record{
		ServerID: "srv",
		Owner:    "tim",
		Date:     time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
		Amount:   a,
		Source:   "Salary",
	}
}

func TestPointsPreserveOrder(t *testing.T) {
	records := []core.Record{record(9, "300"), record(7, "100"), record(8, "200")}

	points := Points(records)
	if len(points) != 3 {
		t.Fatalf("got %d points", len(points))
	}
	for i, want := range []float64{300, 100, 200} {
		if points[i].Amount != want {
			t.Errorf("points[%d].Amount = %v, want %v", i, points[i].Amount, want)
		}
	}
	if points[0].Label != "3/9/2026" {
		t.Errorf("label = %q", points[0].Label)
	}
}

func TestPointsNoAggregation(t *testing.T) {
	// Two records on the same day stay two points.
	records := []core.Record{record(7, "100"), record(7, "50")}
	if got := Points(records); len(got) != 2 {
		t.Errorf("got %d points, want 2", len(got))
	}
}

func TestPointsEmpty(t *testing.T) {
	if got := Points(nil); len(got) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestRenderNothingToDraw(t *testing.T) {
	r := NewRenderer()
	png, err := r.Render(core.KindBudget, nil)
	if err != nil || png != nil {
		t.Errorf("Render(empty) = %v, %v", png, err)
	}
}

func TestRenderProducesPNG(t *testing.T) {
	r := NewRenderer()
	points := Points([]core.Record{record(9, "300"), record(8, "200"), record(7, "100")})

	png, err := r.Render(core.KindBudget, points)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		t.Errorf("output is not a PNG (%d bytes)", len(png))
	}
}
