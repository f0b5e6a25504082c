package logger_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/reelpick/reel/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("NewLoggerWithWriters", func() {
		It("writes info logs to the provided writer", func() {
			var buf bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &buf)
			l.Info("hello")
			Expect(l.Sync()).To(Succeed())

			Expect(buf.String()).To(ContainSubstring("hello"))
		})

		It("filters debug logs when debug is disabled", func() {
			var buf bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &buf)
			l.Debug("hidden")

			Expect(buf.String()).NotTo(ContainSubstring("hidden"))
		})

		It("emits debug logs when debug is enabled", func() {
			var buf bytes.Buffer
			l := logger.NewLoggerWithWriters(true, &buf)
			l.Debug("visible")

			Expect(buf.String()).To(ContainSubstring("visible"))
		})

		It("fans out to multiple writers", func() {
			var a, b bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &a, &b)
			l.Info("both")

			Expect(a.String()).To(ContainSubstring("both"))
			Expect(b.String()).To(ContainSubstring("both"))
		})
	})
})
