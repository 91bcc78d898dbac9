package util

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("UTIL_TEST_STR", "hello")
	if got := GetEnv("UTIL_TEST_STR", "fallback"); got != "hello" {
		t.Errorf("GetEnv() = %q, want hello", got)
	}
	if got := GetEnv("UTIL_TEST_STR_MISSING", "fallback"); got != "fallback" {
		t.Errorf("GetEnv() = %q, want fallback", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{"", true, true},
		{"", false, false},
		{"garbage", true, true},
		{" true ", false, true},
	}
	for _, tt := range tests {
		t.Setenv("UTIL_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("UTIL_TEST_BOOL", tt.defaultValue); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defaultValue, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue int
		want         int
	}{
		{"42", 0, 42},
		{" 7 ", 0, 7},
		{"-3", 0, -3},
		{"", 10, 10},
		{"notanumber", 10, 10},
	}
	for _, tt := range tests {
		t.Setenv("UTIL_TEST_INT", tt.value)
		if got := ParseIntEnv("UTIL_TEST_INT", tt.defaultValue); got != tt.want {
			t.Errorf("ParseIntEnv(%q, %d) = %d, want %d", tt.value, tt.defaultValue, got, tt.want)
		}
	}
}
