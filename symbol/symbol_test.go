package symbol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wippyai/binsize/symbol"
)

func TestDemangle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"_ZN4core3fmt5write17h0123456789abcdefE", "core::fmt::write"},
		{"_ZN3std2io5stdio6_print17h9f1f7e3c5d4b2a10E", "std::io::stdio::_print"},
		{"_ZN47_$LT$alloc..string..String$u20$as$u20$Clone$GT$5clone17h0000000000000000E", "<alloc::string::String as Clone>::clone"},
		{"__ZN3foo3barE", "foo::bar"},
		{"main", "main"},
		{"_ZN3fooE", "foo"},
		{"_ZN", "_ZN"},
		{"_ZN99tooshortE", "_ZN99tooshortE"},
		{"_ZN3foo", "_ZN3foo"},
		{"_ZNxE", "_ZNxE"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, symbol.Demangle(tt.in), tt.in)
	}
}

func TestGenericOf(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"core::ptr::drop_in_place<alloc::string::String>::h0123456789abcdef", "core::ptr::drop_in_place"},
		{"core::ptr::drop_in_place<alloc::vec::Vec<u8>>", "core::ptr::drop_in_place"},
		{"alloc::vec::Vec<T>::push", "alloc::vec::Vec::push"},
		{"<alloc::vec::Vec<u8> as core::clone::Clone>::clone", "<alloc::vec::Vec as core::clone::Clone>::clone"},
		{"apply<fn() -> u8>", "apply"},
		{"std::vector<int>::push_back(int const&)", "std::vector::push_back(int const&)"},
		{"_ZN4core3ptr42drop_in_place$LT$alloc..string..String$GT$17h0123456789abcdefE", "core::ptr::drop_in_place"},

		{"main", ""},
		{"", ""},
		{"_ZN4core3fmt5write17h0123456789abcdefE", ""},
		{"<alloc::string::String as Clone>::clone", ""},
		{"operator<", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, symbol.GenericOf(tt.in), tt.in)
	}
}
