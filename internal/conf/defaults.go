package conf

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultMaxAssetBytes bounds a single relocated asset.
const DefaultMaxAssetBytes = 25 << 20

// setDefaultConfig sets default values for every known key. Env overrides
// only apply to keys viper knows about, so every key needs a default here.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("legacy.dsn", "")
	v.SetDefault("legacy.host", "localhost")
	v.SetDefault("legacy.port", 3306)
	v.SetDefault("legacy.username", "")
	v.SetDefault("legacy.password", "")
	v.SetDefault("legacy.database", "wordpress")
	v.SetDefault("legacy.tableprefix", "wp_")
	v.SetDefault("legacy.memberposttype", "socio")
	v.SetDefault("legacy.statuses", []string{"publish", "private"})
	v.SetDefault("legacy.excludedmetaprefixes", []string{"_edit_", "_wp_", "_oembed", "_encloseme", "_pingme"})
	v.SetDefault("legacy.hosts", []string{})
	v.SetDefault("legacy.attachmentcachettl", 30*time.Minute)
	v.SetDefault("legacy.querytimeout", 30*time.Second)

	v.SetDefault("origin.root", "")
	v.SetDefault("origin.baseurl", "")
	v.SetDefault("origin.uploadsprefix", "/wp-content/uploads/")
	v.SetDefault("origin.maxassetbytes", DefaultMaxAssetBytes)
	v.SetDefault("origin.timeout", 30*time.Second)
	v.SetDefault("origin.useragent", "memberbridge/1.0")

	v.SetDefault("destination.driver", "postgres")
	v.SetDefault("destination.dsn", "")
	v.SetDefault("destination.host", "localhost")
	v.SetDefault("destination.port", 5432)
	v.SetDefault("destination.username", "postgres")
	v.SetDefault("destination.password", "")
	v.SetDefault("destination.database", "postgres")
	v.SetDefault("destination.sslmode", "require")
	v.SetDefault("destination.path", "memberbridge.db")
	v.SetDefault("destination.automigrate", true)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.publicbaseurl", "")
	v.SetDefault("storage.cachecontrol", "3600")
	v.SetDefault("storage.local.path", "storage")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.bucket", "member-files")
	v.SetDefault("storage.s3.accesskeyid", "")
	v.SetDefault("storage.s3.secretaccesskey", "")
	v.SetDefault("storage.s3.usessl", true)
	v.SetDefault("storage.sftp.host", "")
	v.SetDefault("storage.sftp.port", 22)
	v.SetDefault("storage.sftp.username", "")
	v.SetDefault("storage.sftp.password", "")
	v.SetDefault("storage.sftp.keyfile", "")
	v.SetDefault("storage.sftp.knownhostsfile", "")
	v.SetDefault("storage.sftp.basepath", "member-files")
	v.SetDefault("storage.sftp.timeout", 30*time.Second)
	v.SetDefault("storage.ftp.host", "")
	v.SetDefault("storage.ftp.port", 21)
	v.SetDefault("storage.ftp.username", "")
	v.SetDefault("storage.ftp.password", "")
	v.SetDefault("storage.ftp.basepath", "member-files")
	v.SetDefault("storage.ftp.timeout", 30*time.Second)

	v.SetDefault("pipeline.memberdelay", 250*time.Millisecond)
	v.SetDefault("pipeline.retryattempts", 3)
	v.SetDefault("pipeline.retrydelay", time.Second)
	v.SetDefault("pipeline.stagingdir", "staging")
	v.SetDefault("pipeline.ids", []int64{})

	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.format", "json")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/memberbridge.log")
	v.SetDefault("logging.file_output.level", "debug")
}
