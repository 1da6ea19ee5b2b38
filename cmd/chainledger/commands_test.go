package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineItem(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		desc    string
		qty     string
		price   string
	}{
		{
			name:  "simple",
			input: "Consulting:10:150",
			desc:  "Consulting",
			qty:   "10",
			price: "150",
		},
		{
			name:  "decimal quantity and price",
			input: "Support hours:2.5:99.95",
			desc:  "Support hours",
			qty:   "2.5",
			price: "99.95",
		},
		{
			name:    "missing field",
			input:   "Consulting:10",
			wantErr: true,
		},
		{
			name:    "bad quantity",
			input:   "Consulting:ten:150",
			wantErr: true,
		},
		{
			name:    "bad price",
			input:   "Consulting:10:lots",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := parseLineItem(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.desc, item.Description)
			assert.True(t, item.Quantity.Equal(decimal.RequireFromString(tt.qty)))
			assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString(tt.price)))
		})
	}
}

func TestApplyJQ(t *testing.T) {
	input := []map[string]any{
		{"network": "ethereum", "status": "completed"},
		{"network": "bitcoin", "status": "failed"},
	}

	t.Run("select filters to a single result", func(t *testing.T) {
		out, err := applyJQ(`.[] | select(.status == "completed") | .network`, input)
		require.NoError(t, err)
		assert.Equal(t, "ethereum", out)
	})

	t.Run("multiple results come back as a slice", func(t *testing.T) {
		out, err := applyJQ(`.[].network`, input)
		require.NoError(t, err)
		assert.Equal(t, []any{"ethereum", "bitcoin"}, out)
	})

	t.Run("length", func(t *testing.T) {
		out, err := applyJQ(`length`, input)
		require.NoError(t, err)
		assert.EqualValues(t, 2, out)
	})

	t.Run("parse error", func(t *testing.T) {
		_, err := applyJQ(`.[`, input)
		assert.Error(t, err)
	})
}
