package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Deployment describes one ledger deployment of the product contract.
type Deployment struct {
	Name              string         `yaml:"name"`
	ChainID           int64          `yaml:"chain_id"`
	RPCURL            string         `yaml:"rpc_url"`
	Contract          ContractConfig `yaml:"contract"`
	KeystoreDir       string         `yaml:"keystore_dir,omitempty"`
	ConfirmDeadline   time.Duration  `yaml:"confirm_deadline,omitempty"`
	ContentGatewayURL string         `yaml:"content_gateway_url,omitempty"`
}

type ContractConfig struct {
	Address string `yaml:"address"`
	ABIPath string `yaml:"abi_path,omitempty"` // empty uses the built-in ABI
}

// LoadDeployment reads a deployment profile from path.
func LoadDeployment(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load deployment %q: %w", path, err)
	}

	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse deployment %q: %w", path, err)
	}
	if d.ChainID < 0 {
		return nil, fmt.Errorf("parse deployment %q: negative chain_id", path)
	}
	return &d, nil
}
