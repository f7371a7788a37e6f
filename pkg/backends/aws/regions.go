package aws

import "github.com/cloudmast/cloudmast/pkg/provision"

// regionCatalog is the static list of commercial EC2 regions. EC2 has
// no unauthenticated region-discovery endpoint and DescribeRegions only
// shows regions the account opted into, so the catalog is fixed.
var regionCatalog = []provision.Region{
	{BackendID: "us-east-1", Name: "US East (N. Virginia)"},
	{BackendID: "us-east-2", Name: "US East (Ohio)"},
	{BackendID: "us-west-1", Name: "US West (N. California)"},
	{BackendID: "us-west-2", Name: "US West (Oregon)"},
	{BackendID: "ca-central-1", Name: "Canada (Central)"},
	{BackendID: "eu-west-1", Name: "Europe (Ireland)"},
	{BackendID: "eu-west-2", Name: "Europe (London)"},
	{BackendID: "eu-west-3", Name: "Europe (Paris)"},
	{BackendID: "eu-central-1", Name: "Europe (Frankfurt)"},
	{BackendID: "eu-north-1", Name: "Europe (Stockholm)"},
	{BackendID: "ap-northeast-1", Name: "Asia Pacific (Tokyo)"},
	{BackendID: "ap-northeast-2", Name: "Asia Pacific (Seoul)"},
	{BackendID: "ap-southeast-1", Name: "Asia Pacific (Singapore)"},
	{BackendID: "ap-southeast-2", Name: "Asia Pacific (Sydney)"},
	{BackendID: "ap-south-1", Name: "Asia Pacific (Mumbai)"},
	{BackendID: "sa-east-1", Name: "South America (São Paulo)"},
}

// regionIDs returns the catalog region identifiers.
func regionIDs() []string {
	ids := make([]string, len(regionCatalog))
	for i, r := range regionCatalog {
		ids[i] = r.BackendID
	}
	return ids
}
