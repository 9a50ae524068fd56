// xnet is a command line HTTP/1.1 client built on the xnet library. It
// speaks to servers directly or through HTTP, SOCKS4, SOCKS4a, SOCKS5 and
// chained proxies.
//
// Usage:
//
//	# Fetch a page
//	xnet get https://example.com/
//
//	# POST a form through a SOCKS5 proxy
//	xnet request -X POST -d 'a=1&b=2' --proxy socks5://127.0.0.1:1080 http://example.com/form
//
//	# Upload a file as multipart/form-data
//	xnet request -F name=value -F file=@report.pdf https://example.com/upload
//
//	# Load test with 4 workers at 50 requests per second
//	xnet bench -n 1000 -c 4 --rate 50 http://127.0.0.1:8080/
package main

func main() {
	Execute()
}
