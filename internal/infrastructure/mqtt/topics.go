package mqtt

import "fmt"

// Topic prefixes used by the UWB gateways and the bridge itself.
const (
	// TopicPrefixGateway is the base for all gateway topics.
	// Scheme: UWB/GW{name}_{channel}
	TopicPrefixGateway = "UWB"

	// TopicPrefixBridge is the base for the bridge's own topics.
	TopicPrefixBridge = "uwb-bridge"
)

// Gateway channel suffixes.
const (
	ChannelHealth       = "Health"
	ChannelLocation     = "Loca"
	ChannelAnchorConfig = "AncConf"
	ChannelTagConfig    = "TagConf"
	ChannelAck          = "Ack"
	ChannelMessage      = "Message"
	ChannelDownlink     = "Dwlink"
)

// Topics provides builders for gateway and bridge topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	downlink := topics.GatewayDownlink("16B8")
//	// Returns: "UWB/GW16B8_Dwlink"
type Topics struct{}

// =============================================================================
// Gateway Topics
// =============================================================================

// Gateway returns the topic for one gateway channel.
//
// Example: UWB/GW16B8_Health
func (Topics) Gateway(name, channel string) string {
	return fmt.Sprintf("%s/GW%s_%s", TopicPrefixGateway, name, channel)
}

// GatewayHealth returns the gateway health/status topic.
//
// Example: UWB/GW17F5_Health
func (t Topics) GatewayHealth(name string) string {
	return t.Gateway(name, ChannelHealth)
}

// GatewayLocation returns the tag location report topic.
//
// Example: UWB/GW16B8_Loca
func (t Topics) GatewayLocation(name string) string {
	return t.Gateway(name, ChannelLocation)
}

// GatewayAnchorConfig returns the anchor configuration topic.
//
// Example: UWB/GW16B8_AncConf
func (t Topics) GatewayAnchorConfig(name string) string {
	return t.Gateway(name, ChannelAnchorConfig)
}

// GatewayTagConfig returns the tag configuration topic.
//
// Example: UWB/GW16B8_TagConf
func (t Topics) GatewayTagConfig(name string) string {
	return t.Gateway(name, ChannelTagConfig)
}

// GatewayAck returns the downlink acknowledgement topic.
//
// Example: UWB/GW16B8_Ack
func (t Topics) GatewayAck(name string) string {
	return t.Gateway(name, ChannelAck)
}

// GatewayMessage returns the free-form gateway message topic.
//
// Example: UWB/GW16B8_Message
func (t Topics) GatewayMessage(name string) string {
	return t.Gateway(name, ChannelMessage)
}

// GatewayDownlink returns the topic the bridge publishes configuration to.
//
// Example: UWB/GW16B8_Dwlink
func (t Topics) GatewayDownlink(name string) string {
	return t.Gateway(name, ChannelDownlink)
}

// GatewayInbound returns every topic a gateway publishes on, in a stable order.
func (t Topics) GatewayInbound(name string) []string {
	return []string{
		t.GatewayHealth(name),
		t.GatewayLocation(name),
		t.GatewayAnchorConfig(name),
		t.GatewayTagConfig(name),
		t.GatewayAck(name),
		t.GatewayMessage(name),
	}
}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeStatus returns the retained online/offline topic for a bridge instance.
//
// Example: uwb-bridge/uwb-bridge-3f2a/status
func (Topics) BridgeStatus(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixBridge, clientID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllGateways returns a pattern matching every gateway topic.
//
// Pattern: UWB/#
func (Topics) AllGateways() string {
	return TopicPrefixGateway + "/#"
}
