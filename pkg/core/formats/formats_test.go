// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package formats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "Linear", FormatLinear.String())
	require.Equal(t, "CHW32", FormatCHW32.String())
	require.Equal(t, "Format(17)", Format(17).String())

	f, err := FormatString("hwc8")
	require.NoError(t, err)
	require.Equal(t, FormatHWC8, f)
	_, err = FormatString("NCHW")
	require.Error(t, err)

	require.Len(t, FormatValues(), 6)
	require.Equal(t, 1, FormatLinear.VectorSize())
	require.Equal(t, 8, FormatHWC8.VectorSize())
}
