package verify

import (
	"fmt"

	"scrapworks/internal/domain/remix"
)

// Off-chain metadata in the standard Metaplex shape, uploaded next to the
// remix image. Wallets and marketplaces read this document via the URI
// recorded on the minted token.

type metadataAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type metadataFile struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

type metadataProperties struct {
	Files    []metadataFile `json:"files"`
	Category string         `json:"category"`
}

type remixMetadata struct {
	Name        string              `json:"name"`
	Symbol      string              `json:"symbol"`
	Description string              `json:"description"`
	Image       string              `json:"image"`
	Attributes  []metadataAttribute `json:"attributes"`
	Properties  metadataProperties  `json:"properties"`
}

func buildMetadata(name, symbol, imageURI, imageMime, sourceMint string, machine remix.Machine, tier remix.Tier, traits remix.TraitSet) remixMetadata {
	return remixMetadata{
		Name:        name,
		Symbol:      symbol,
		Description: fmt.Sprintf("Remix of %s, run through the %s.", sourceMint, machine),
		Image:       imageURI,
		Attributes: []metadataAttribute{
			{TraitType: "Tier", Value: tier.String()},
			{TraitType: "Machine", Value: machine.String()},
			{TraitType: "Finish", Value: traits.Finish},
			{TraitType: "Plating", Value: traits.Plating},
			{TraitType: "Emblem", Value: traits.Emblem},
			{TraitType: "Source", Value: sourceMint},
		},
		Properties: metadataProperties{
			Files:    []metadataFile{{URI: imageURI, Type: imageMime}},
			Category: "image",
		},
	}
}
