package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Plan maps a gateway price or product onto a human readable plan label.
type Plan struct {
	PriceID   string `mapstructure:"priceId" validate:"required_without=ProductID"`
	ProductID string `mapstructure:"productId" validate:"required_without=PriceID"`
	Label     string `mapstructure:"label" validate:"required"`
	Tier      string `mapstructure:"tier"`
}

type Catalog struct {
	Plans []Plan `mapstructure:"plans" validate:"dive"`
}

// LabelFor returns the configured label for a price, falling back to the product.
func (c Catalog) LabelFor(priceID, productID string) (string, bool) {
	priceID = strings.TrimSpace(priceID)
	productID = strings.TrimSpace(productID)
	if priceID != "" {
		for _, p := range c.Plans {
			if p.PriceID == priceID {
				return p.Label, true
			}
		}
	}
	if productID != "" {
		for _, p := range c.Plans {
			if p.ProductID == productID {
				return p.Label, true
			}
		}
	}
	return "", false
}

type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

var catalogValidator = validator.New()

// NewStaticCatalogHolder returns a holder that never reloads.
func NewStaticCatalogHolder(c Catalog) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(c)
	return holder
}

func NewCatalogHolder(cfg Config, log *zap.Logger) (*CatalogHolder, error) {
	log = log.Named("config.catalog")
	v := viper.New()

	if strings.TrimSpace(cfg.CatalogPath) != "" {
		v.SetConfigFile(cfg.CatalogPath)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/storefront")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		log.Info("catalog file not found, using gateway product names")
		return NewStaticCatalogHolder(Catalog{}), nil
	}

	catalog, err := decodeCatalog(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticCatalogHolder(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeCatalog(v)
		if err != nil {
			log.Warn("invalid catalog ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("catalog reloaded", zap.String("file", e.Name), zap.Int("plans", len(updated.Plans)))
	})

	return holder, nil
}

func (h *CatalogHolder) Get() Catalog {
	if h == nil {
		return Catalog{}
	}
	c, _ := h.current.Load().(Catalog)
	return c
}

func decodeCatalog(v *viper.Viper) (Catalog, error) {
	var c Catalog
	if err := v.UnmarshalKey("catalog", &c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := catalogValidator.Struct(c); err != nil {
		return Catalog{}, fmt.Errorf("validate catalog: %w", err)
	}
	return c, nil
}
