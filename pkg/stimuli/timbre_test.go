package stimuli

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"
)

func TestSpectralFeatures_Tone(t *testing.T) {
	// 100 ms at 48 kHz holds a whole number of cycles of each tone.
	for _, freq := range []float64{500, 1000, 4000} {
		f := SpectralFeatures(Tone(freq, 100*time.Millisecond, 48000))
		if !floatEquals(f.Centroid, freq, 20) {
			t.Errorf("%v Hz: centroid %v", freq, f.Centroid)
		}
		if !floatEquals(f.Rolloff, freq, 20) {
			t.Errorf("%v Hz: rolloff %v", freq, f.Rolloff)
		}
		if want := 2 * freq / 48000; !floatEquals(f.ZCR, want, 0.002) {
			t.Errorf("%v Hz: zcr %v, want %v", freq, f.ZCR, want)
		}
	}
}

func TestSpectralFeatures_NoiseIsBrighterThanTone(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	noise := SpectralFeatures(WhiteNoise(50*time.Millisecond, 48000, rng))
	tone := SpectralFeatures(Tone(300, 50*time.Millisecond, 48000))
	if noise.Centroid <= tone.Centroid || noise.Rolloff <= tone.Rolloff || noise.ZCR <= tone.ZCR {
		t.Errorf("noise %+v not brighter than tone %+v", noise, tone)
	}
}

func TestSpectralFeatures_Silence(t *testing.T) {
	f := SpectralFeatures(New(make([]float64, 64), 48000))
	if f != (Features{}) {
		t.Errorf("silence features = %+v", f)
	}
	if f := SpectralFeatures(New(nil, 48000)); f != (Features{}) {
		t.Errorf("empty features = %+v", f)
	}
}

func TestZeroCrossingRate(t *testing.T) {
	tests := []struct {
		data []float64
		want float64
	}{
		{nil, 0},
		{[]float64{1}, 0},
		{[]float64{1, -1, 1, -1, 1}, 1},
		{[]float64{1, 2, 3}, 0},
		{[]float64{0, -1, 0, 1}, 2.0 / 3},
	}
	for _, tt := range tests {
		if got := ZeroCrossingRate(tt.data); !floatEquals(got, tt.want, 1e-12) {
			t.Errorf("ZeroCrossingRate(%v) = %v, want %v", tt.data, got, tt.want)
		}
	}
}

func TestMeanFeatures(t *testing.T) {
	a := Tone(500, 100*time.Millisecond, 48000)
	b := Tone(1500, 100*time.Millisecond, 48000)
	f := MeanFeatures([]*Sound{a, b})
	if !floatEquals(f.Centroid, 1000, 20) {
		t.Errorf("mean centroid = %v, want 1000", f.Centroid)
	}
	if f := MeanFeatures(nil); f != (Features{}) {
		t.Errorf("no sounds gave %+v", f)
	}
}

func TestClusterTalkers_SeparatesGroups(t *testing.T) {
	feats := []Features{
		{Centroid: 500, Rolloff: 1800, ZCR: 0.02},
		{Centroid: 3100, Rolloff: 8200, ZCR: 0.21},
		{Centroid: 520, Rolloff: 2000, ZCR: 0.025},
		{Centroid: 2900, Rolloff: 7900, ZCR: 0.19},
		{Centroid: 480, Rolloff: 1900, ZCR: 0.022},
		{Centroid: 3000, Rolloff: 8000, ZCR: 0.2},
	}
	labels, err := ClusterTalkers(feats, 2, rand.New(rand.NewPCG(3, 4)))
	if err != nil {
		t.Fatalf("ClusterTalkers: %v", err)
	}
	if len(labels) != len(feats) {
		t.Fatalf("got %d labels for %d talkers", len(labels), len(feats))
	}
	dark, bright := labels[0], labels[1]
	if dark == bright {
		t.Fatalf("dark and bright talkers share cluster %d", dark)
	}
	for i, l := range labels {
		want := dark
		if i%2 == 1 {
			want = bright
		}
		if l != want {
			t.Errorf("talker %d in cluster %d, want %d", i, l, want)
		}
	}
}

func TestClusterTalkers_Deterministic(t *testing.T) {
	feats := make([]Features, 12)
	rng := rand.New(rand.NewPCG(5, 6))
	for i := range feats {
		feats[i] = Features{Centroid: 400 + 3000*rng.Float64(), Rolloff: 1000 + 8000*rng.Float64(), ZCR: rng.Float64() / 4}
	}
	a, err := ClusterTalkers(feats, 3, rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatalf("ClusterTalkers: %v", err)
	}
	b, _ := ClusterTalkers(feats, 3, rand.New(rand.NewPCG(7, 7)))
	if !slices.Equal(a, b) {
		t.Errorf("same seed gave %v and %v", a, b)
	}
	for _, l := range a {
		if l < 0 || l >= 3 {
			t.Errorf("label %d outside [0,3)", l)
		}
	}
}

func TestClusterTalkers_Edges(t *testing.T) {
	feats := []Features{{Centroid: 1}, {Centroid: 2}, {Centroid: 3}}
	labels, err := ClusterTalkers(feats, 5, nil)
	if err != nil {
		t.Fatalf("ClusterTalkers: %v", err)
	}
	if !slices.Equal(labels, []int{0, 1, 2}) {
		t.Errorf("more clusters than talkers gave %v", labels)
	}
	if _, err := ClusterTalkers(feats, 0, nil); err == nil {
		t.Error("expected error for zero clusters")
	}
	if _, err := ClusterTalkers(nil, 2, nil); err == nil {
		t.Error("expected error for no talkers")
	}
	// Identical talkers still get valid labels.
	same := []Features{{Centroid: 1}, {Centroid: 1}, {Centroid: 1}, {Centroid: 1}}
	labels, err = ClusterTalkers(same, 2, nil)
	if err != nil {
		t.Fatalf("ClusterTalkers: %v", err)
	}
	for _, l := range labels {
		if l < 0 || l >= 2 {
			t.Errorf("label %d outside [0,2)", l)
		}
	}
}

func TestPickSpread(t *testing.T) {
	labels := []int{0, 0, 0, 1, 1, 2}
	rng := rand.New(rand.NewPCG(8, 9))
	for range 20 {
		picked := PickSpread(labels, 3, rng)
		if len(picked) != 3 {
			t.Fatalf("picked %v, want 3 talkers", picked)
		}
		seen := map[int]bool{}
		for _, i := range picked {
			seen[labels[i]] = true
		}
		if len(seen) != 3 {
			t.Errorf("picked %v covers clusters %v, want all three", picked, seen)
		}
	}

	picked := PickSpread(labels, 5, rng)
	counts := map[int]int{}
	for _, i := range picked {
		counts[labels[i]]++
	}
	if counts[0] != 2 || counts[1] != 2 || counts[2] != 1 {
		t.Errorf("five picks per cluster = %v, want 2/2/1", counts)
	}
	sorted := slices.Sorted(slices.Values(picked))
	if len(slices.Compact(sorted)) != 5 {
		t.Errorf("picked %v repeats a talker", picked)
	}

	if got := PickSpread(labels, 10, rng); len(got) != len(labels) {
		t.Errorf("picked %d of %d talkers", len(got), len(labels))
	}
}
