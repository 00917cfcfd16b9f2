package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/vaultbridge/txflow/pkg/chain"
	"github.com/vaultbridge/txflow/pkg/models"
)

// kindSpecSchema validates kind definitions supplied as configuration data.
var kindSpecSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"kind": map[string]any{
			"type": "string",
			"enum": []any{
				string(models.KindBridgeSend),
				string(models.KindVaultDeposit),
				string(models.KindRentHarvest),
				string(models.KindLiquidationDeposit),
				string(models.KindNavUpdate),
				string(models.KindStacksDeposit),
			},
		},
		"requires_permission":  map[string]any{"type": "boolean"},
		"requires_fee_quote":   map[string]any{"type": "boolean"},
		"tracks_deposit":       map[string]any{"type": "boolean"},
		"asset_decimals":       map[string]any{"type": "integer", "minimum": 0, "maximum": 18},
		"spender":              map[string]any{"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
		"destination_chain_id": map[string]any{"type": "integer", "minimum": 1},
	},
	"required":             []any{"kind", "asset_decimals"},
	"additionalProperties": false,
}

// DefaultKindSpecs declares the six built-in pipelines as data. Per-kind
// behavior differences (permission step, fee quote, polled deposit leg) live
// here instead of in separately written control flow.
func DefaultKindSpecs() map[models.WorkflowKind]models.KindSpec {
	specs := []models.KindSpec{
		{
			Kind:               models.KindBridgeSend,
			RequiresPermission: true,
			RequiresFeeQuote:   true,
			AssetDecimals:      18,
			DestinationChainID: 5757,
		},
		{
			Kind:               models.KindVaultDeposit,
			RequiresPermission: true,
			AssetDecimals:      18,
		},
		{
			Kind:          models.KindRentHarvest,
			AssetDecimals: 18,
		},
		{
			Kind:               models.KindLiquidationDeposit,
			RequiresPermission: true,
			AssetDecimals:      18,
		},
		{
			Kind:          models.KindNavUpdate,
			AssetDecimals: 18,
		},
		{
			Kind:               models.KindStacksDeposit,
			RequiresPermission: true,
			RequiresFeeQuote:   true,
			TracksDeposit:      true,
			AssetDecimals:      8,
			DestinationChainID: 1,
		},
	}

	byKind := make(map[models.WorkflowKind]models.KindSpec, len(specs))
	for _, spec := range specs {
		byKind[spec.Kind] = spec
	}

	return byKind
}

// LoadKindSpecs decodes kind definitions from configuration, validating each
// against the kind-spec schema first.
func LoadKindSpecs(raw []map[string]any) (map[models.WorkflowKind]models.KindSpec, error) {
	schemaLoader := gojsonschema.NewGoLoader(kindSpecSchema)
	specs := make(map[models.WorkflowKind]models.KindSpec, len(raw))

	for i, entry := range raw {
		result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(entry))
		if err != nil {
			return nil, fmt.Errorf("failed to validate kind spec %d: %w", i, err)
		}

		if !result.Valid() {
			return nil, fmt.Errorf("invalid kind spec %d: %v", i, result.Errors())
		}

		payload, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}

		var spec models.KindSpec

		err = json.Unmarshal(payload, &spec)
		if err != nil {
			return nil, fmt.Errorf("failed to decode kind spec %d: %w", i, err)
		}

		specs[spec.Kind] = spec
	}

	return specs, nil
}

// actionOperationType maps each pipeline to the on-chain call its action step
// performs.
func actionOperationType(kind models.WorkflowKind) chain.OperationType {
	switch kind {
	case models.KindBridgeSend:
		return chain.OperationBridgeTransfer
	case models.KindVaultDeposit:
		return chain.OperationVaultDeposit
	case models.KindRentHarvest:
		return chain.OperationRentHarvest
	case models.KindLiquidationDeposit:
		return chain.OperationLiquidationDeposit
	case models.KindNavUpdate:
		return chain.OperationNavUpdate
	case models.KindStacksDeposit:
		return chain.OperationStacksDeposit
	default:
		return chain.OperationType(kind)
	}
}
