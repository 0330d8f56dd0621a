package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestWindowOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Window
		want bool
	}{
		{"both open", Window{}, Window{}, true},
		{"open start vs bounded", Window{Until: day(2000, 12, 31)}, Window{From: day(1990, 1, 1), Until: day(1995, 1, 1)}, true},
		{"adjacent days do not overlap", Window{Until: day(2000, 12, 31)}, Window{From: day(2001, 1, 1)}, false},
		{"same single day", Window{From: day(2001, 1, 1), Until: day(2001, 1, 1)}, Window{From: day(2001, 1, 1)}, true},
		{"disjoint bounded", Window{From: day(1980, 1, 1), Until: day(1985, 1, 1)}, Window{From: day(1990, 1, 1), Until: day(1995, 1, 1)}, false},
		{"open end covers later", Window{From: day(1980, 1, 1)}, Window{From: day(2020, 1, 1), Until: day(2021, 1, 1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{From: day(2015, 1, 1), Until: day(2020, 12, 31)}
	assert.True(t, w.Contains(day(2015, 1, 1)))
	assert.True(t, w.Contains(day(2020, 12, 31)))
	assert.False(t, w.Contains(day(2021, 1, 1)))
	assert.False(t, w.Contains(nil))
	assert.True(t, Window{From: day(2015, 1, 1)}.Contains(nil))
}

func TestWindowValidate(t *testing.T) {
	assert.NoError(t, Window{From: day(2000, 1, 1), Until: day(2000, 1, 1)}.Validate())
	assert.Error(t, Window{From: day(2000, 1, 2), Until: day(2000, 1, 1)}.Validate())
}

func TestDayBefore(t *testing.T) {
	assert.Equal(t, *day(2020, 12, 31), DayBefore(time.Date(2021, 1, 1, 15, 0, 0, 0, time.UTC)))
}
