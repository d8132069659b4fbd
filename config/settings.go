package config

import "time"

// Input product filename extensions
const (
	LandsatInputExtension   = ".tar.gz"
	ModisInputExtension     = ".hdf"
	ViirsInputExtension     = ".h5"
	Sentinel2InputExtension = ".zip"
)

// Order cache directories
const (
	RemoteCacheDirectory = "/data2/science_lsrd/LSRD/orders"
	LocalCacheDirectory  = ""
)

// DefaultSleep is how long to wait before retrying a failed step.
const DefaultSleep = 2 * time.Second

// Retry bounds
const (
	MaxPackagingAttempts     = 3
	MaxDeliveryAttempts      = 3
	MaxDistributionAttempts  = 5
	MaxSetSceneErrorAttempts = 5
)

// Checksums
const (
	ChecksumTool      = "md5sum"
	ChecksumExtension = "md5"
)

// PigzMultithreading is the fallback compression thread count.
const PigzMultithreading = 1

// Pixel sizes in decimal degrees
const (
	DegFor30Meters = 0.0002695
	DegFor15Meters = DegFor30Meters / 2.0
	DegFor10Meters = DegFor30Meters / 3.0
	DegFor1Meter   = DegFor30Meters / 30.0
)

// SinusoidalSphereRadius is the only radius supported when warping to sinusoidal.
const SinusoidalSphereRadius = 6371007.181
