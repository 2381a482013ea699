package domain

import (
	"sort"
	"strings"
)

// DefaultPorts is used when a target carries no port specification.
const DefaultPorts = "21,22,23,25,80,110,139,143,443,445,3389"

// ScanTarget is a host/range specification plus a port specification.
type ScanTarget struct {
	Host  string `json:"host"`
	Ports string `json:"ports,omitempty"`
}

// String returns the host part, which is what tools and reports display.
func (t ScanTarget) String() string { return t.Host }

// Hosts splits the host specification into the discrete tokens handed to a
// tool, one argv entry each.
func (t ScanTarget) Hosts() []string {
	return strings.FieldsFunc(t.Host, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

var portCategories = map[string]string{
	"web":           "80,443,8080,8443,8000,8888",
	"database":      "1433,1521,3306,5432,27017",
	"mail":          "25,110,143,465,587,993,995",
	"file_transfer": "20,21,22,69,115,445",
	"remote_access": "22,23,3389,5900",
	"common":        DefaultPorts,
	"top100": "1,3,4,6,7,9,13,17,19,20,21,22,23,24,25,26,30,32,33,37,42,43,49,53,70,79,80,81,82,83,84,85,88,89,90," +
		"99,100,106,109,110,111,113,119,125,135,139,143,144,146,161,163,179,199,211,212,222,254,255,256,259,264," +
		"280,301,306,311,340,366,389,406,407,416,417,425,427,443,444,445,458,464,465,481,497,500,512,513,514,515," +
		"524,541,543,544,545,548,554,555,563,587,593,616,617,625,631,636,646,648,666,667,668,683,687,691,700,705," +
		"711,714,720,722,726,749,765,777,783,787,800,801,808,843,873,880,888,898,900,901,902,903,911,912,981,987," +
		"990,992,993,995,999,1000",
}

// PortCategory returns the port list of a named category.
func PortCategory(name string) (string, bool) {
	p, ok := portCategories[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// PortCategoryNames returns the category names in alphabetical order.
func PortCategoryNames() []string {
	names := make([]string, 0, len(portCategories))
	for n := range portCategories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
