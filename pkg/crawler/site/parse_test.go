package site

import (
	"math"
	"testing"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"¥1,234（税込）", 1234},
		{"１，２３４円", 1234},
		{"価格: 980 円", 980},
		{"price on request", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParsePrice(tt.in); got != tt.want {
			t.Errorf("ParsePrice(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDeclaredKg(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"350g", 0.35},
		{"内容量 1.2kg", 1.2},
		{"２００グラム", 0.2},
		{"個包装 120g / 箱 480g", 0.48},
		{"no weight", 0},
	}
	for _, tt := range tests {
		if got := ParseDeclaredKg(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseDeclaredKg(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseVolumetricKg(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"20×15×10cm", 0.6},
		{"サイズ: 200x150x100mm", 0.6},
		{"20 * 15 * 10", 0.6},
		{"20cm", 0},
	}
	for _, tt := range tests {
		if got := ParseVolumetricKg(tt.in, 5000); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseVolumetricKg(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolveWeightKgTakesMax(t *testing.T) {
	if got := ResolveWeightKg("350g 20×15×10cm", 5000); math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("volumetric should win, got %v", got)
	}
	if got := ResolveWeightKg("1kg 10×10×10cm", 5000); math.Abs(got-1) > 1e-9 {
		t.Fatalf("declared should win, got %v", got)
	}
}

func TestIsSoldOut(t *testing.T) {
	if !IsSoldOut("只今 売り切れ です", DefaultSoldOutMarkers) {
		t.Fatal("expected 売り切れ to be sold out")
	}
	if !IsSoldOut("SOLD OUT", DefaultSoldOutMarkers) {
		t.Fatal("expected case-insensitive match")
	}
	if IsSoldOut("在庫あり", DefaultSoldOutMarkers) {
		t.Fatal("在庫あり is in stock")
	}
	if IsSoldOut("anything", []string{""}) {
		t.Fatal("empty marker must not match")
	}
}
