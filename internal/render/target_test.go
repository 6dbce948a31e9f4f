package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderhub/internal/pkg/errors"
)

func TestTargetRoundTrip(t *testing.T) {
	targets := []Target{
		ItemTarget{ItemID: 42, ItemType: "hat"},
		UserTarget{UserID: 7, Avatar: &Avatar{
			Colors: map[BodyPart]string{Head: "112233"},
			Items:  map[ItemSlot]int64{SlotTool: 4},
			Hats:   []int64{1, 2},
		}},
		UserTarget{UserID: 8},
	}

	for _, want := range targets {
		data, err := EncodeTarget(want)
		require.NoError(t, err)

		got, err := DecodeTarget(data)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestEncodeTargetPointer(t *testing.T) {
	data, err := EncodeTarget(&ItemTarget{ItemID: 1, ItemType: "face"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"item","item":{"id":1,"item_type":"face"}}`, string(data))
}

func TestEncodeTargetUnsupported(t *testing.T) {
	_, err := EncodeTarget(nil)
	assert.True(t, errors.IsCode(err, errors.CodeUnsupportedTarget))
}

func TestDecodeTargetErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		code errors.Code
	}{
		{"unknown kind", `{"kind":"group","group":{"id":1}}`, errors.CodeUnsupportedTarget},
		{"missing body", `{"kind":"item"}`, errors.CodeUnsupportedTarget},
		{"bad json", `{"kind":`, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTarget([]byte(tt.data))
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "item:42:item_icon", DedupKey(ItemTarget{ItemID: 42, ItemType: "hat"}, "item_icon"))
	assert.Equal(t, "user:7:headshot", DedupKey(UserTarget{UserID: 7}, "headshot"))
}
