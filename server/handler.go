package server

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kotone/wdtagger/config"
	"github.com/kotone/wdtagger/tagger"
)

var errUnauthorized = errors.New("unauthorized")

func authenticate(c *gin.Context) error {
	auth := c.GetHeader("Authorization")

	expectedToken := config.C().Token
	if expectedToken == "" {
		return nil
	}
	providedToken := ""
	if len(auth) > 7 && auth[:7] == "Bearer " {
		providedToken = auth[7:]
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
		return errUnauthorized
	}

	return nil
}

// thresholdOverrides reads optional per-category threshold form fields.
func thresholdOverrides(c *gin.Context, base tagger.Options) (tagger.Options, error) {
	overrides := map[tagger.Category]float32{}
	for k, v := range base.Thresholds {
		overrides[k] = v
	}
	fields := map[string]tagger.Category{
		"general_threshold":   tagger.CategoryGeneral,
		"character_threshold": tagger.CategoryCharacter,
		"rating_threshold":    tagger.CategoryRating,
	}
	for field, category := range fields {
		raw := c.PostForm(field)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 32)
		if err != nil || value < 0 || value > 1 {
			return base, errors.New("threshold must be a number in [0,1]")
		}
		overrides[category] = float32(value)
	}
	base.Thresholds = overrides
	return base, nil
}

func PredictHandler(c *gin.Context) {
	if err := authenticate(c); err != nil {
		c.JSON(401, gin.H{"error": "authentication failed"})
		return
	}
	if pipeline == nil {
		c.JSON(503, gin.H{"error": "pipeline not ready"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(400, gin.H{"error": "no file uploaded"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(400, gin.H{"error": "cannot open uploaded file"})
		return
	}
	defer file.Close()

	img, err := tagger.Decode(file)
	if err != nil {
		c.JSON(400, gin.H{"error": "cannot decode image"})
		return
	}

	opts, err := thresholdOverrides(c, defaultOptions())
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	result, err := pipeline.TagWith(img, opts)
	if err != nil {
		if errors.Is(err, tagger.ErrPipelineNotReady) {
			c.JSON(503, gin.H{"error": "pipeline not ready"})
			return
		}
		slog.Error("Prediction failed", slog.String("error", err.Error()))
		c.JSON(500, gin.H{"error": "inference failed"})
		return
	}

	c.JSON(200, result)
}

func defaultOptions() tagger.Options {
	cfg := config.C()
	return tagger.Options{
		Thresholds: map[tagger.Category]float32{
			tagger.CategoryGeneral:   cfg.GeneralThreshold,
			tagger.CategoryCharacter: cfg.CharacterThreshold,
			tagger.CategoryRating:    cfg.RatingThreshold,
		},
		SortByScore: cfg.SortByScore,
		MCut:        cfg.MCut,
	}
}

func HealthHandler(c *gin.Context) {
	c.JSON(200, gin.H{"status": "healthy"})
}
