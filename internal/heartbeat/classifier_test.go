package heartbeat

import "testing"

func TestClassifyPower(t *testing.T) {
	cases := []struct {
		watts float64
		want  Band
	}{
		{0.0, BandOff},
		{1.9, BandOff},
		{2.0, BandStandby},
		{14.9, BandStandby},
		{15.0, BandAmbiguous},
		{29.9, BandAmbiguous},
		{30.0, BandIdle},
		{59.9, BandIdle},
		{60.0, BandActive},
		{180.0, BandActive},
		{250.0, BandActive},
	}

	for _, tc := range cases {
		if got := ClassifyPower(tc.watts); got != tc.want {
			t.Fatalf("ClassifyPower(%.1f) = %s, want %s", tc.watts, got, tc.want)
		}
	}
}

func TestCombine(t *testing.T) {
	w := func(v float64) *float64 { return &v }

	cases := []struct {
		name      string
		probeOK   bool
		watts     *float64
		reachable bool
		conf      Confidence
	}{
		{"probe success any power", true, w(0.5), true, ConfidenceHigh},
		{"probe success no power", true, nil, true, ConfidenceHigh},
		{"failure while idle", false, w(45), false, ConfidenceMedium},
		{"failure while active", false, w(120), false, ConfidenceMedium},
		{"failure while off", false, w(0.8), false, ConfidenceHigh},
		{"failure while standby", false, w(8), false, ConfidenceHigh},
		{"failure ambiguous power", false, w(20), false, ConfidenceLow},
		{"failure no power sample", false, nil, false, ConfidenceLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Combine(tc.probeOK, tc.watts)
			if v.Reachable != tc.reachable {
				t.Fatalf("reachable = %v, want %v", v.Reachable, tc.reachable)
			}
			if v.Confidence != tc.conf {
				t.Fatalf("confidence = %s, want %s", v.Confidence, tc.conf)
			}
			if v.ObservedAt.IsZero() {
				t.Fatalf("verdict must carry its observation time")
			}
		})
	}
}
