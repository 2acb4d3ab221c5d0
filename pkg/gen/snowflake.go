package gen

import (
	"fmt"

	"postflow/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake", fx.Provide(NewNode))

// NewNode returns the snowflake node for this process. Every replica needs
// its own SNOWFLAKE.NODE.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.Snowflake.Node)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake node %d: %w", cfg.Snowflake.Node, err)
	}
	return node, nil
}
