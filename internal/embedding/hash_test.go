package embedding

import (
	"math"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	p := NewHashProvider(64)
	a := p.Vector("read the contents of a file")
	b := p.Vector("read the contents of a file")
	if len(a) != 64 {
		t.Fatalf("got dimension %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHashUnitNorm(t *testing.T) {
	p := NewHashProvider(128)
	vec := p.Vector("normalize me please")
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Errorf("got norm %v, want 1", math.Sqrt(sum))
	}
}

func TestHashEmptyTextStaysZero(t *testing.T) {
	p := NewHashProvider(16)
	for _, text := range []string{"", "   ", "\n\t"} {
		vec := p.Vector(text)
		for i, v := range vec {
			if v != 0 {
				t.Fatalf("text %q: component %d = %v, want 0", text, i, v)
			}
			if math.IsNaN(float64(v)) {
				t.Fatalf("text %q: component %d is NaN", text, i)
			}
		}
	}
}

func TestHashPositionWeighting(t *testing.T) {
	p := NewHashProvider(64)
	// Same words, different order: position weights must make the
	// vectors differ.
	a := p.Vector("alpha beta")
	b := p.Vector("beta alpha")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("word order should change the embedding")
	}
}

func TestHashCaseInsensitive(t *testing.T) {
	p := NewHashProvider(64)
	a := p.Vector("Read File")
	b := p.Vector("read file")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("embedding should be case-insensitive")
		}
	}
}

func TestHashDefaultDimension(t *testing.T) {
	p := NewHashProvider(0)
	if p.Dimension() != DefaultDimension {
		t.Errorf("got dimension %d, want %d", p.Dimension(), DefaultDimension)
	}
}
