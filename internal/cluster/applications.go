package cluster

import (
	"github.com/patrickmn/go-cache"
	"golang.org/x/exp/maps"
)

const applicationsCacheKey = "applications"

// ApplicationKey identifies an application in the applications view, e.g. "web shop:app-1".
func ApplicationKey(displayName string, applicationId string) string {
	return displayName + ":" + applicationId
}

// rescanApplications rebuilds the mapping from application to the ids of the cluster's entities it owns.
func (c *Cluster) rescanApplications() {
	view := map[string][]string{}
	for _, entity := range c.deps.Registry.SameCluster(c.config.Id) {
		applicationId := entity.GetApplicationId()
		if applicationId == "" || entity.GetId() == c.GetId() {
			continue
		}
		displayName := applicationId
		if application, ok := c.deps.Registry.Get(applicationId); ok {
			displayName = application.GetName()
		}
		key := ApplicationKey(displayName, applicationId)
		view[key] = append(view[key], entity.GetId())
	}
	c.applications.Set(applicationsCacheKey, view, cache.DefaultExpiration)
}

// Applications returns the last computed applications view. It is empty if no rescan ran recently.
func (c *Cluster) Applications() map[string][]string {
	view, ok := c.applications.Get(applicationsCacheKey)
	if !ok {
		return map[string][]string{}
	}
	return maps.Clone(view.(map[string][]string))
}
