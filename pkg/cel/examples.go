package cel

var FilterExpressionExamples = map[string]string{
	"single_source":   `source == "us"`,
	"source_in_list":  `source in ["us", "ak", "nc"]`,
	"product_type":    `productType == "origin" || productType == "phase-data"`,
	"code_prefix":     `code.startsWith("us7000")`,
	"recent_versions": `updateTime > timestamp("2024-01-01T00:00:00Z")`,
	"not_expired_by":  `expires > timestamp("2024-01-02T00:00:00Z")`,
	"url_host":        `url.startsWith("https://earthquake.usgs.gov/")`,
	"skip_scenarios":  `!productType.endsWith("-scenario")`,
	"combined":        `source == "us" && productType == "origin" && !code.startsWith("test")`,
	"by_urn":          `urn.startsWith("urn:usgs-product:us:origin:")`,
	"version_window":  `expires - updateTime > duration("1h")`,
	"regex_code":      `code.matches("^[a-z]{2}[0-9]{8}$")`,
}
