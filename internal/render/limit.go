package render

// Limiter keeps a frame inside the power supply's budget. It runs in two
// stages: a per-LED white cap, then a global current budget with a soft knee.
//
// Units follow the LED datasheet: a channel at 255 draws ChannelMA, so a white
// LED draws 3*ChannelMA.
type Limiter struct {
	// WhiteCap bounds R+G+B per LED as a fraction of full white (1 = no cap).
	WhiteCap float64
	// ChannelMA is the current of one channel at full scale; WS2812 is ~20.
	ChannelMA float64
	// BudgetMA is the current available to the strips; 0 disables the stage.
	BudgetMA float64
	// Knee is the fraction of BudgetMA where soft limiting begins.
	Knee float64
}

func (l Limiter) normalized() Limiter {
	if l.WhiteCap <= 0 || l.WhiteCap > 1 {
		l.WhiteCap = 1
	}
	if l.ChannelMA <= 0 {
		l.ChannelMA = 20
	}
	if l.Knee <= 0 || l.Knee >= 1 {
		l.Knee = 0.9
	}
	return l
}

// Enabled reports whether Apply can change a frame.
func (l Limiter) Enabled() bool {
	n := l.normalized()
	return n.BudgetMA > 0 || n.WhiteCap < 1
}

// Apply scales the RGB frame in place.
func (l Limiter) Apply(rgb []byte) {
	l = l.normalized()

	if l.WhiteCap < 1 {
		limit := l.WhiteCap * 3 * 255
		for i := 0; i+2 < len(rgb); i += 3 {
			s := float64(rgb[i]) + float64(rgb[i+1]) + float64(rgb[i+2])
			if s > limit {
				scale(rgb[i:i+3], limit/s)
			}
		}
	}

	if l.BudgetMA <= 0 {
		return
	}
	var sum float64
	for _, v := range rgb {
		sum += float64(v)
	}
	total := sum / 255 * l.ChannelMA
	if total <= 0 {
		return
	}
	ratio := total / l.BudgetMA
	if ratio <= l.Knee {
		return
	}
	s := l.BudgetMA / total
	if ratio <= 1 {
		// map ratio in [knee,1] to a scale in [1, budget/total]
		t := (ratio - l.Knee) / (1 - l.Knee)
		s = 1 - t*(1-s)
	}
	scale(rgb, s)
}

func scale(buf []byte, s float64) {
	if s >= 1 {
		return
	}
	for i, v := range buf {
		buf[i] = uint8(float64(v) * s)
	}
}
