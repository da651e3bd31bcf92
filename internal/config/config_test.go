package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/Joseda-hg/lazycal/internal/config"
)

func TestLoad(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")

		convey.Convey("When the file does not exist", func() {
			cfg, err := config.Load(path)

			convey.Convey("Then defaults are returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.WebPort, convey.ShouldEqual, 8080)
				convey.So(cfg.WeekStart, convey.ShouldEqual, "sunday")
				convey.So(cfg.HorizonDays, convey.ShouldEqual, 7)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
				convey.So(cfg.WeekStartDay(), convey.ShouldEqual, time.Sunday)
			})
		})

		convey.Convey("When a YAML file sets values", func() {
			data := "db_path: /tmp/cal.db\nweb_port: 9001\nweek_start: Monday\nhorizon_days: 14\ntimezone: UTC\n"
			convey.So(os.WriteFile(path, []byte(data), 0o644), convey.ShouldBeNil)

			cfg, err := config.Load(path)

			convey.Convey("Then the file overrides defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DBPath, convey.ShouldEqual, "/tmp/cal.db")
				convey.So(cfg.WebPort, convey.ShouldEqual, 9001)
				convey.So(cfg.WeekStartDay(), convey.ShouldEqual, time.Monday)
				convey.So(cfg.HorizonDays, convey.ShouldEqual, 14)
				convey.So(cfg.Location(), convey.ShouldEqual, time.UTC)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			})

			convey.Convey("And environment variables override the file", func() {
				t.Setenv("LAZYCAL_WEB_PORT", "7000")
				t.Setenv("LAZYCAL_HORIZON_DAYS", "3")

				cfg, err := config.Load(path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.WebPort, convey.ShouldEqual, 7000)
				convey.So(cfg.HorizonDays, convey.ShouldEqual, 3)
				convey.So(cfg.DBPath, convey.ShouldEqual, "/tmp/cal.db")
			})
		})

		convey.Convey("When the file is malformed", func() {
			convey.So(os.WriteFile(path, []byte("web_port: [1, 2\n"), 0o644), convey.ShouldBeNil)

			_, err := config.Load(path)

			convey.Convey("Then an error is returned", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestNormalize(t *testing.T) {
	convey.Convey("Given a config with invalid values", t, func() {
		cfg := config.Config{WebPort: -1, WeekStart: "friday", HorizonDays: 0, LogLevel: " DEBUG ", Timezone: "Not/AZone"}
		cfg.Normalize()

		convey.So(cfg.WebPort, convey.ShouldEqual, 8080)
		convey.So(cfg.WeekStart, convey.ShouldEqual, "sunday")
		convey.So(cfg.HorizonDays, convey.ShouldEqual, 7)
		convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
		convey.So(cfg.Location(), convey.ShouldEqual, time.Local)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	convey.Convey("Given a saved config", t, func() {
		path := filepath.Join(t.TempDir(), "nested", "config.yaml")
		cfg := config.Default()
		cfg.DBPath = "/data/lazycal.db"
		cfg.WebEnabled = true
		cfg.WeekStart = "monday"

		convey.So(config.Save(path, cfg), convey.ShouldBeNil)

		convey.Convey("Then Load reads the same values and no temp file remains", func() {
			loaded, err := config.Load(path)
			convey.So(err, convey.ShouldBeNil)
			convey.So(loaded, convey.ShouldResemble, cfg)

			entries, err := os.ReadDir(filepath.Dir(path))
			convey.So(err, convey.ShouldBeNil)
			convey.So(entries, convey.ShouldHaveLength, 1)
		})
	})
}
