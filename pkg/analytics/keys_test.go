package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsKey(t *testing.T) {
	r := &DateRange{
		From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, "getCourseMetrics:c1:default", metricsKey(methodCourse, "c1", nil))
	assert.Equal(t, "getCourseMetrics:c1:2026-01-01T00:00:00Z|2026-02-01T00:00:00Z", metricsKey(methodCourse, "c1", r))

	keys := map[string]struct{}{
		metricsKey(methodCourse, "c1", nil):     {},
		metricsKey(methodCourse, "c2", nil):     {},
		metricsKey(methodCourse, "c1", r):       {},
		metricsKey(methodInstructor, "c1", nil): {},
	}
	assert.Len(t, keys, 4, "distinct parameterizations never collide")

	t.Run("same instant in another zone shares a key", func(t *testing.T) {
		tz := time.FixedZone("UTC-3", -3*3600)
		shifted := &DateRange{From: r.From.In(tz), To: r.To.In(tz)}
		assert.Equal(t, metricsKey(methodPlatform, platformEntity, r), metricsKey(methodPlatform, platformEntity, shifted))
	})
}

func TestDateRange_Validate(t *testing.T) {
	now := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	var nilRange *DateRange
	assert.NoError(t, nilRange.Validate())
	assert.NoError(t, (&DateRange{From: now.AddDate(0, 0, -1), To: now}).Validate())
	assert.ErrorIs(t, (&DateRange{From: now, To: now.AddDate(0, 0, -1)}).Validate(), ErrInvalidRange)
	assert.ErrorIs(t, (&DateRange{To: now}).Validate(), ErrInvalidRange)
}

func TestDateRange_Resolve(t *testing.T) {
	now := time.Date(2026, 3, 20, 15, 0, 0, 0, time.UTC)

	var nilRange *DateRange
	def := nilRange.resolve(now)
	assert.Equal(t, now.AddDate(0, 0, -DefaultRangeDays), def.From)
	assert.Equal(t, now, def.To)

	explicit := &DateRange{From: now.AddDate(0, -1, 0), To: now}
	assert.Equal(t, *explicit, explicit.resolve(now.AddDate(1, 0, 0)))
}

func TestParseDateRange(t *testing.T) {
	t.Run("both empty", func(t *testing.T) {
		r, err := ParseDateRange("", "")
		require.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("rfc3339", func(t *testing.T) {
		r, err := ParseDateRange("2026-01-01T10:00:00+02:00", "2026-01-02T00:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC), r.From)
		assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), r.To)
	})

	t.Run("dates cover the whole last day", func(t *testing.T) {
		r, err := ParseDateRange("2026-01-01", "2026-01-31")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), r.From)
		assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), r.To)
	})

	t.Run("errors", func(t *testing.T) {
		for _, tc := range [][2]string{
			{"2026-01-01", ""},
			{"", "2026-01-01"},
			{"yesterday", "2026-01-01"},
			{"2026-02-01", "2026-01-01"},
		} {
			_, err := ParseDateRange(tc[0], tc[1])
			assert.ErrorIs(t, err, ErrInvalidRange, tc)
		}
	})
}

func TestEntityKeys(t *testing.T) {
	assert.Equal(t, "course:c1:lessons", LessonsKey("c1"))
	assert.Equal(t, "user:u1:certificates", CertificatesKey("u1"))
}
