package azure

import "github.com/cloudmast/cloudmast/pkg/provision"

// locationCatalog is the static list of public-cloud Azure locations
// the backend offers. Location discovery needs a subscription-level
// client; the names themselves are stable.
var locationCatalog = []provision.Region{
	{BackendID: "eastus", Name: "East US"},
	{BackendID: "eastus2", Name: "East US 2"},
	{BackendID: "westus", Name: "West US"},
	{BackendID: "westus2", Name: "West US 2"},
	{BackendID: "centralus", Name: "Central US"},
	{BackendID: "canadacentral", Name: "Canada Central"},
	{BackendID: "northeurope", Name: "North Europe"},
	{BackendID: "westeurope", Name: "West Europe"},
	{BackendID: "uksouth", Name: "UK South"},
	{BackendID: "ukwest", Name: "UK West"},
	{BackendID: "francecentral", Name: "France Central"},
	{BackendID: "germanywestcentral", Name: "Germany West Central"},
	{BackendID: "swedencentral", Name: "Sweden Central"},
	{BackendID: "switzerlandnorth", Name: "Switzerland North"},
	{BackendID: "southeastasia", Name: "Southeast Asia"},
	{BackendID: "eastasia", Name: "East Asia"},
	{BackendID: "japaneast", Name: "Japan East"},
	{BackendID: "australiaeast", Name: "Australia East"},
	{BackendID: "brazilsouth", Name: "Brazil South"},
}
