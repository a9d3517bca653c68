package core

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestHistoryRecentOldestFirst(t *testing.T) {
	h := NewHistory(HistoryCapacity)
	require.Empty(t, slices.Collect(h.Recent(ReplaySize)))

	for i := 1; i <= 3; i++ {
		h.Append(Message{Text: fmt.Sprint(i)})
	}
	require.Equal(t, []string{"1", "2", "3"}, texts(slices.Collect(h.Recent(ReplaySize))))
	require.Equal(t, []string{"2", "3"}, texts(slices.Collect(h.Recent(2))))
	require.Empty(t, slices.Collect(h.Recent(0)))
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(HistoryCapacity)
	for i := 1; i <= 105; i++ {
		h.Append(Message{Text: fmt.Sprint(i)})
	}
	require.Equal(t, HistoryCapacity, h.Len())

	all := slices.Collect(h.Recent(HistoryCapacity + 10))
	require.Len(t, all, HistoryCapacity)
	require.Equal(t, "6", all[0].Text)
	require.Equal(t, "105", all[len(all)-1].Text)

	replay := slices.Collect(h.Recent(ReplaySize))
	require.Len(t, replay, ReplaySize)
	require.Equal(t, "56", replay[0].Text)
}

func TestHistoryRecentIsRestartable(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 3; i++ {
		h.Append(Message{Text: fmt.Sprint(i)})
	}
	seq := h.Recent(2)
	require.Equal(t, texts(slices.Collect(seq)), texts(slices.Collect(seq)))

	// "2" is evicted after the window was taken.
	h.Append(Message{Text: "4"})
	h.Append(Message{Text: "5"})
	require.Equal(t, []string{"3"}, texts(slices.Collect(seq)))

	for m := range h.Recent(3) {
		require.Equal(t, "3", m.Text)
		break
	}
}
