package configuration

import (
	"github.com/pkg/errors"

	commonconfig "github.com/armadaproject/mesoscoordinator/internal/common/config"
)

func (c CoordinatorConfiguration) Validate() error {
	if err := commonconfig.Validate(c); err != nil {
		return err
	}
	if c.Naming.Type == RedisNaming && c.Naming.Redis == nil {
		return errors.New("naming registry of type redis requires a redis configuration")
	}
	seen := map[string]bool{}
	for _, cluster := range c.Clusters {
		if seen[cluster.Id] {
			return errors.Errorf("cluster %s is configured more than once", cluster.Id)
		}
		seen[cluster.Id] = true
	}
	return nil
}
