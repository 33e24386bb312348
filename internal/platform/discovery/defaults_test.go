package discovery

import "testing"

func TestDefaultAddrs(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{name: "storefront http", got: DefaultHTTPAddr(ServiceStorefront), want: "storefront:8090"},
		{name: "sync http", got: DefaultHTTPAddr(ServiceSync), want: "syncd:8095"},
		{name: "sync grpc", got: DefaultGRPCAddr(ServiceSync), want: "syncd:8096"},
		{name: "storefront has no grpc", got: DefaultGRPCAddr(ServiceStorefront), want: ""},
		{name: "unknown", got: DefaultHTTPAddr("nope"), want: ""},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s = %q, want %q", tc.name, tc.got, tc.want)
		}
	}
	if got := DefaultGRPCPort(ServiceSync); got != 8096 {
		t.Fatalf("sync grpc port = %d, want 8096", got)
	}
}

func TestOrDefaultHTTPBaseURL(t *testing.T) {
	if got := OrDefaultHTTPBaseURL(" https://shop.example.com/ ", ServiceStorefront); got != "https://shop.example.com" {
		t.Fatalf("expected explicit base url to win, got %q", got)
	}
	if got := OrDefaultHTTPBaseURL("", ServiceStorefront); got != "http://storefront:8090" {
		t.Fatalf("expected default storefront base url, got %q", got)
	}
}
