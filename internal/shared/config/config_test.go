package config

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("With no environment overrides", t, func() {
		cfg := Load()

		Convey("Defaults favour a self-contained process", func() {
			So(cfg.StoreDriver, ShouldEqual, StoreDriverMemory)
			So(cfg.Redis.Enabled(), ShouldBeFalse)
			So(cfg.Notifications.Enabled, ShouldBeFalse)
			So(cfg.GetAPIBasePath(), ShouldEqual, "/api/v1")
			So(cfg.TrustedProxies, ShouldBeEmpty)
			So(cfg.Validate(), ShouldBeNil)
		})
	})

	Convey("With overrides", t, func() {
		t.Setenv("STORE_DRIVER", "Postgres")
		t.Setenv("REDIS_HOST", "cache")
		t.Setenv("LOCK_WAIT", "250ms")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
		t.Setenv("DB_NAME", "draws")
		t.Setenv("NUM_CONSUMER_WORKERS", "not-a-number")
		t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8")

		cfg := Load()

		So(cfg.StoreDriver, ShouldEqual, StoreDriverPostgres)
		So(cfg.Redis.Addr, ShouldEqual, "cache:6379")
		So(cfg.Lottery.LockWait, ShouldEqual, 250*time.Millisecond)
		So(cfg.Notifications.Brokers, ShouldResemble, []string{"k1:9092", "k2:9092"})
		So(cfg.Database.DSN, ShouldContainSubstring, "dbname=draws")
		So(cfg.Notifications.NumWorkers, ShouldEqual, 2)
		So(cfg.TrustedProxies, ShouldResemble, []string{"10.0.0.0/8"})
	})
}

func TestValidate(t *testing.T) {
	Convey("Validate rejects unusable settings", t, func() {
		cfg := Load()

		Convey("Unknown store driver", func() {
			cfg.StoreDriver = "sqlite"
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("Non-positive lock wait", func() {
			cfg.Lottery.LockWait = 0
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("Default secret in release mode", func() {
			cfg.GinMode = "release"
			So(cfg.Validate(), ShouldNotBeNil)
			cfg.JWT.Secret = "s3cr3t"
			So(cfg.Validate(), ShouldBeNil)
		})
	})
}
