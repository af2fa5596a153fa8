package pipeline_test

import (
	"testing"
	"time"

	"github.com/tobozo/go-targz/pipeline"
)

func TestNewConfigDefaults(t *testing.T) {
	c := pipeline.NewConfig()
	if c.SectorSize != 4096 {
		t.Fatalf("got sector size %d, want 4096", c.SectorSize)
	}
	if c.ReadTimeout != 10*time.Second {
		t.Fatalf("got read timeout %v, want 10s", c.ReadTimeout)
	}
	if c.LowMemory {
		t.Fatal("expected LowMemory to default false")
	}
}

func TestWithSectorSizeRejectsNonMultipleOf512(t *testing.T) {
	c := pipeline.NewConfig(pipeline.WithSectorSize(1000))
	if c.SectorSize != 4096 {
		t.Fatalf("got %d, want default retained for an invalid size", c.SectorSize)
	}

	c2 := pipeline.NewConfig(pipeline.WithSectorSize(8192))
	if c2.SectorSize != 8192 {
		t.Fatalf("got %d, want 8192", c2.SectorSize)
	}
}

func TestWithOnFatalAndHaltOnError(t *testing.T) {
	var called bool
	c := pipeline.NewConfig(
		pipeline.WithOnFatal(func(error) { called = true }),
		pipeline.WithHaltOnError(true),
	)
	if c.OnFatal == nil {
		t.Fatal("expected OnFatal to be set")
	}
	c.OnFatal(nil)
	if !called {
		t.Fatal("expected OnFatal to have been invoked")
	}
	if !c.HaltOnError {
		t.Fatal("expected HaltOnError true")
	}
}
