package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepairArgs(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{`{"a":1}{"a":1}`, `{"a":1}`},
		{` {"model":"airpods pro"}{"model":"airpods pro"} `, `{"model":"airpods pro"}`},
		{``, `{}`},
	}
	for _, c := range cases {
		got, err := RepairArgs(c.in)
		require.NoError(t, err, c.in)
		require.JSONEq(t, c.want, string(got), c.in)
	}
}

func TestRepairArgsRejects(t *testing.T) {
	for _, in := range []string{`{"a":`, `not json`, `{"a":{"b":1}}{"a":{"b":1}}`} {
		_, err := RepairArgs(in)
		require.Error(t, err, in)
	}
}
