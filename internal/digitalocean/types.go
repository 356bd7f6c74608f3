package digitalocean

import "time"

type Region struct {
	Slug      string   `json:"slug"`
	Name      string   `json:"name"`
	Sizes     []string `json:"sizes"`
	Available bool     `json:"available"`
	Features  []string `json:"features"`
}

type Size struct {
	Slug         string   `json:"slug"`
	Memory       int      `json:"memory"`
	VCPUs        int      `json:"vcpus"`
	Disk         int      `json:"disk"`
	Transfer     float64  `json:"transfer"`
	PriceMonthly float64  `json:"price_monthly"`
	PriceHourly  float64  `json:"price_hourly"`
	Regions      []string `json:"regions"`
	Available    bool     `json:"available"`
	Description  string   `json:"description"`
}

type Image struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Distribution string   `json:"distribution"`
	Slug         string   `json:"slug"`
	Public       bool     `json:"public"`
	Regions      []string `json:"regions"`
	Type         string   `json:"type"`
	MinDiskSize  int      `json:"min_disk_size"`
}

type NetworkV4 struct {
	IPAddress string `json:"ip_address"`
	Netmask   string `json:"netmask"`
	Gateway   string `json:"gateway"`
	Type      string `json:"type"`
}

type Networks struct {
	V4 []NetworkV4 `json:"v4"`
}

type Droplet struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Memory    int       `json:"memory"`
	VCPUs     int       `json:"vcpus"`
	Disk      int       `json:"disk"`
	Locked    bool      `json:"locked"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Image     Image     `json:"image"`
	Size      Size      `json:"size"`
	SizeSlug  string    `json:"size_slug"`
	Region    Region    `json:"region"`
	Networks  Networks  `json:"networks"`
	Tags      []string  `json:"tags"`
}

// PublicIPv4 returns the first public v4 address, or "" while networking is
// still being provisioned.
func (d Droplet) PublicIPv4() string {
	for _, n := range d.Networks.V4 {
		if n.Type == "public" {
			return n.IPAddress
		}
	}
	return ""
}

// ImageRef is the image slug when the image has one, its name otherwise.
func (d Droplet) ImageRef() string {
	if d.Image.Slug != "" {
		return d.Image.Slug
	}
	return d.Image.Name
}

type DropletCreateRequest struct {
	Name    string   `json:"name"`
	Region  string   `json:"region"`
	Size    string   `json:"size"`
	Image   string   `json:"image"`
	SSHKeys []string `json:"ssh_keys,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

type Action struct {
	ID           int64     `json:"id"`
	Status       string    `json:"status"`
	Type         string    `json:"type"`
	StartedAt    time.Time `json:"started_at"`
	ResourceID   int64     `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
}

type Account struct {
	DropletLimit    int    `json:"droplet_limit"`
	FloatingIPLimit int    `json:"floating_ip_limit"`
	Email           string `json:"email"`
	UUID            string `json:"uuid"`
	EmailVerified   bool   `json:"email_verified"`
	Status          string `json:"status"`
	StatusMessage   string `json:"status_message"`
}

// Addresses is the provider's source/destination block. Only one field is
// populated by the console; see Selector.
type Addresses struct {
	Addresses  []string `json:"addresses,omitempty"`
	DropletIDs []int64  `json:"droplet_ids,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

type InboundRule struct {
	Protocol string    `json:"protocol"`
	Ports    string    `json:"ports,omitempty"`
	Sources  Addresses `json:"sources"`
}

type OutboundRule struct {
	Protocol     string    `json:"protocol"`
	Ports        string    `json:"ports,omitempty"`
	Destinations Addresses `json:"destinations"`
}

type Firewall struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name"`
	Status        string         `json:"status,omitempty"`
	InboundRules  []InboundRule  `json:"inbound_rules"`
	OutboundRules []OutboundRule `json:"outbound_rules"`
	DropletIDs    []int64        `json:"droplet_ids,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	CreatedAt     *time.Time     `json:"created_at,omitempty"`
}
