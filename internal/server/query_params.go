package server

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

func parseSnowflakeID(value string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("empty id")
	}
	id, err := snowflake.ParseString(trimmed)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
