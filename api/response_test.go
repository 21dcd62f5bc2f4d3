package api

import (
	"fmt"
	"net/http"
	"testing"

	"parish/service"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind service.Kind
		want int
	}{
		{service.KindInvalidHierarchy, http.StatusBadRequest},
		{service.KindInvalidRange, http.StatusBadRequest},
		{service.KindNegativeAmount, http.StatusBadRequest},
		{service.KindInvalidTarget, http.StatusBadRequest},
		{service.KindInvalidInput, http.StatusBadRequest},
		{service.KindAlreadyPopulated, http.StatusConflict},
		{service.KindOverlappingPeriod, http.StatusConflict},
		{service.KindInvalidTransition, http.StatusConflict},
		{service.KindPeriodClosed, http.StatusConflict},
		{service.KindNodeInUse, http.StatusConflict},
		{service.KindHierarchyCorrupt, http.StatusInternalServerError},
		{service.KindNotFound, http.StatusNotFound},
		{service.KindForbidden, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(&service.Error{Kind: tt.kind}))
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2025-02-28")
	assert.NoError(t, err)
	assert.Equal(t, 28, d.Day())

	for _, s := range []string{"", "2025-02-30", "28/02/2025", "2025-02-28 10:00:00"} {
		_, err := parseDate(s)
		assert.Error(t, err, fmt.Sprintf("%q", s))
	}
}
