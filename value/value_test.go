package value

import (
	"testing"
)

type dimensions struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

func TestNormalize_Struct(t *testing.T) {
	got, err := Normalize(map[string]any{
		"window": dimensions{Width: 1080, Height: 1920, Scale: 2.5},
		"tags":   []int{1, 200, 70000},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("got %T, want map[string]any", got)
	}
	window, ok := m["window"].(map[string]any)
	if !ok {
		t.Fatalf("window is %T", m["window"])
	}
	if window["width"] != int64(1080) {
		t.Errorf("width = %#v, want int64(1080)", window["width"])
	}
	if window["scale"] != 2.5 {
		t.Errorf("scale = %#v, want 2.5", window["scale"])
	}

	tags, ok := m["tags"].([]any)
	if !ok || len(tags) != 3 {
		t.Fatalf("tags = %#v", m["tags"])
	}
	for i, want := range []int64{1, 200, 70000} {
		if tags[i] != want {
			t.Errorf("tags[%d] = %#v, want %d", i, tags[i], want)
		}
	}
}

func TestNormalize_Scalars(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{"s", "s"},
		{int64(-3), int64(-3)},
		{1.5, 1.5},
		{7, int64(7)},
		{uint8(200), int64(200)},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Fatalf("Normalize(%#v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Normalize(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_Unencodable(t *testing.T) {
	if _, err := Normalize(make(chan int)); err == nil {
		t.Fatal("expected error for channel")
	}
}

func TestDecodeInto(t *testing.T) {
	data, err := Encode(dimensions{Width: 10, Height: 20, Scale: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var d dimensions
	if err := DecodeInto(data, &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Width != 10 || d.Height != 20 || d.Scale != 1 {
		t.Fatalf("decoded %+v", d)
	}
}

func TestToInt(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{int64(5), 5, true},
		{5.0, 5, true},
		{5.5, 0, false},
		{"5", 0, false},
	}
	for _, tt := range tests {
		got, ok := ToInt(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ToInt(%#v) = %d, %v", tt.in, got, ok)
		}
	}
}
