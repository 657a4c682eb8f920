package activity

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tvlScope/internal/model"
)

func TestFilterActive(t *testing.T) {
	p1 := common.HexToAddress("0x01")
	p2 := common.HexToAddress("0x02")
	p3 := common.HexToAddress("0x03")
	other := common.HexToAddress("0xff")

	events := []model.ActivityEvent{
		{Emitter: p3, BlockNumber: 10},
		{Emitter: other, BlockNumber: 10},
		{Emitter: p1, BlockNumber: 11},
		{Emitter: p3, BlockNumber: 12, Count: 2},
	}

	got := FilterActive([]common.Address{p1, p2, p3, p1}, events, zap.NewNop())

	require.Len(t, got, 2)
	assert.Equal(t, model.ActivePair{Address: p1, Count: 1}, got[0])
	assert.Equal(t, model.ActivePair{Address: p3, Count: 3}, got[1])
	assert.Equal(t, []common.Address{p1, p3}, Addresses(got))
}

func TestFilterActiveNoEvents(t *testing.T) {
	got := FilterActive([]common.Address{common.HexToAddress("0x01")}, nil, nil)
	assert.Empty(t, got)
}
