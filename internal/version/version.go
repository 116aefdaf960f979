// ABOUTME: Version information for resonate-capture
// ABOUTME: Reported in the CLI, the level feed hello and mDNS TXT records
package version

const (
	// Version is the release version
	Version = "0.1.0"

	// Product is the product name
	Product = "Resonate Capture"

	// Manufacturer is the vendor name
	Manufacturer = "Resonate"
)

// String returns the product and version for display
func String() string {
	return Product + " " + Version
}
