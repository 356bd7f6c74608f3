package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"droplet_console/internal/digitalocean"
)

func ListRegions(do *digitalocean.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		regions, err := do.ListRegions(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"regions": regions})
	}
}

type sizeView struct {
	digitalocean.Size
	Price float64 `json:"price"`
}

// ListSizes returns provider sizes with the price the console charges.
func ListSizes(do *digitalocean.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		sizes, err := do.ListSizes(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		out := make([]sizeView, 0, len(sizes))
		for _, s := range sizes {
			out = append(out, sizeView{Size: s, Price: digitalocean.CalculatePrice(s.PriceMonthly)})
		}
		c.JSON(http.StatusOK, gin.H{"sizes": out})
	}
}

func ListImages(do *digitalocean.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		images, err := do.ListImages(c.Request.Context(), c.DefaultQuery("type", "distribution"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"images": images})
	}
}
