// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := Make[rune](10)
	assert.Len(t, s, 0)

	// Check inserting and recovery.
	s.Insert('i', 'j', 'i')
	assert.Len(t, s, 2)
	assert.True(t, s.Has('i'))
	assert.True(t, s.Has('j'))
	assert.False(t, s.Has('k'))
}

func TestOrdered(t *testing.T) {
	o := MakeOrdered('k', 'i')
	assert.Equal(t, 2, o.Len())
	o.Insert('i', 'j', 'k', 'l')
	assert.Equal(t, []rune{'k', 'i', 'j', 'l'}, o.Elements())
	assert.Equal(t, 0, o.Index('k'))
	assert.Equal(t, 2, o.Index('j'))
	assert.Equal(t, -1, o.Index('z'))
	assert.True(t, o.Has('l'))
	assert.False(t, o.Has('z'))

	empty := MakeOrdered[int]()
	assert.Equal(t, 0, empty.Len())
	assert.Empty(t, empty.Elements())
}
