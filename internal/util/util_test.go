package util

import (
	"testing"
)

func TestNormalizeProfileURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"already canonical", "https://www.walmart.com/seller/101", "https://www.walmart.com/seller/101", false},
		{"http and uppercase host", "http://WWW.Walmart.com/seller/101/", "https://www.walmart.com/seller/101", false},
		{"protocol relative", "//www.walmart.com/seller/101", "https://www.walmart.com/seller/101", false},
		{"tracking params removed", "https://www.walmart.com/seller/101?utm_source=x&athcpid=1", "https://www.walmart.com/seller/101", false},
		{"other params kept", "https://www.walmart.com/seller/101?page=2#top", "https://www.walmart.com/seller/101?page=2", false},
		{"relative path untouched", "/seller/101", "/seller/101", false},
		{"invalid", "http://[::1", "http://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeProfileURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeProfileURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeProfileURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSellerProfileURL(t *testing.T) {
	if got := SellerProfileURL("walmart.com", "5f3c-aa"); got != "https://www.walmart.com/seller/5f3c-aa" {
		t.Errorf("SellerProfileURL() = %q", got)
	}
	if got := SellerProfileURL("www.walmart.ca", "7"); got != "https://www.walmart.ca/seller/7" {
		t.Errorf("SellerProfileURL() = %q", got)
	}
	if got := SellerProfileURL("", "7"); got != "" {
		t.Errorf("SellerProfileURL() with no domain = %q, want empty", got)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"$1,299.99", "1299.99", true},
		{"12.50 USD", "12.5", true},
		{"£7", "7", true},
		{"free", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got.String() != tt.want {
				t.Errorf("ParsePrice(%q) = %s, want %s", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestSafeAtoi(t *testing.T) {
	if SafeAtoi(" 42 ") != 42 {
		t.Error("SafeAtoi should trim whitespace")
	}
	if SafeAtoi("4x") != 0 {
		t.Error("SafeAtoi should return 0 on garbage")
	}
}

func TestCleanNumericString(t *testing.T) {
	if got := CleanNumericString("1,234 reviews"); got != "1234" {
		t.Errorf("CleanNumericString() = %q, want 1234", got)
	}
}
