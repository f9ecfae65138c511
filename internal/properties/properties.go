package properties

import (
	"os"
	"path/filepath"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ScratchPath is the working directory for per-scene intermediates.
func ScratchPath() string {
	return getenv("ATMCORR_SCRATCH", filepath.Join(os.TempDir(), "atmcorr"))
}

// CachePath holds cached radiative transfer results between runs.
func CachePath() string {
	return getenv("ATMCORR_CACHE", filepath.Join(ScratchPath(), "cache"))
}

func SixSBin() string {
	return getenv("ATMCORR_SIXS_BIN", "sixs")
}

func FMaskBin() string {
	return getenv("ATMCORR_FMASK_BIN", "fmask")
}

func GsutilBin() string {
	return getenv("ATMCORR_GSUTIL", "gsutil")
}

func LogLevel() string {
	return getenv("ATMCORR_LOG_LEVEL", "info")
}

func CatalogURL() string {
	return os.Getenv("ATMCORR_CATALOG_URL")
}

func CatalogTokenURL() string {
	return os.Getenv("ATMCORR_CATALOG_TOKEN_URL")
}

func CatalogClientID() string {
	return os.Getenv("ATMCORR_CATALOG_CLIENT_ID")
}

func CatalogClientSecret() string {
	return os.Getenv("ATMCORR_CATALOG_CLIENT_SECRET")
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}
