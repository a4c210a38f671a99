package devfee

import "testing"

func TestObligation(t *testing.T) {
	ratio := 1.0 / 17.0

	tests := []struct {
		name            string
		userSolutions   int64
		devFeeSolutions int64
		want            int64
	}{
		{"zero solutions", 0, 0, 0},
		{"below first boundary", 16, 0, 0},
		{"crosses first boundary", 17, 0, 1},
		{"already satisfied", 17, 1, 0},
		{"debt never negative", 17, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Obligation(tt.userSolutions, tt.devFeeSolutions, ratio); got != tt.want {
				t.Errorf("Obligation(%d, %d, %v) = %d, want %d", tt.userSolutions, tt.devFeeSolutions, ratio, got, tt.want)
			}
		})
	}
}
