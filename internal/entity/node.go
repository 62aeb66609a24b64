package entity

import (
	"fmt"
	"net/url"
	"strconv"
)

// GameID is unique across the cluster: the minting node plus that node's counter.
type GameID struct {
	Node string
	Seq  uint64
}

func (that GameID) String() string {
	return that.Node + "_" + strconv.FormatUint(that.Seq, 10)
}

// Node describes a cluster member as published in the presence directory.
type Node struct {
	ID        string `json:"id"`
	PeerAddr  string `json:"peer_addr"`
	PublicURL string `json:"public_url"`
}

// RedirectURL is where a player is sent when its traffic moves to this node.
func (that Node) RedirectURL(player string) (string, error) {
	target, err := url.Parse(that.PublicURL)
	if err != nil {
		return "", fmt.Errorf("invalid public url for node %s: %w", that.ID, err)
	}

	query := target.Query()
	query.Set("player", player)
	target.RawQuery = query.Encode()

	return target.String(), nil
}
