package isorazor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"Simple", "Simple"},
		{"with space", "with_space"},
		{"Crème brûlée", "Creme_brulee"},
		{"1st", "C1st"},
		{"_x", "C_x"},
		{"", "C"},
		{"a/b.c", "a_b_c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassName(tt.name))
		})
	}
}

func TestGroupClassName(t *testing.T) {
	assert.Equal(t, ClassName("mail"+GroupMemberSeparator+"Item"), GroupClassName("mail", "Item"))
	assert.NotEqual(t, GroupClassName("mail", "Item"), GroupClassName("mail", "Other"))
}

func TestQualifiedTypeName(t *testing.T) {
	assert.Equal(t, "X", QualifiedTypeName("", "X"))
	assert.Equal(t, DefaultNamespace+QualifiedNameSep+"X", QualifiedTypeName(DefaultNamespace, "X"))
}
