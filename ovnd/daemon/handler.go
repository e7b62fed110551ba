package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/translate"
)

// queueGroup load-balances event handling across ovnd instances.
const queueGroup = "ovnd-workers"

// Handler consumes cloud lifecycle events from NATS, maintains the local
// object cache and drives the OVN translation for each event.
type Handler struct {
	translator *translate.Client
	store      cloud.Store
}

// NewHandler creates a Handler.
func NewHandler(translator *translate.Client, store cloud.Store) *Handler {
	return &Handler{translator: translator, store: store}
}

// Subscribe registers queue subscriptions for every lifecycle topic.
func (h *Handler) Subscribe(nc *nats.Conn) ([]*nats.Subscription, error) {
	type sub struct {
		topic   string
		handler nats.MsgHandler
	}

	subs := []sub{
		{TopicNetworkCreate, h.handleNetworkCreate},
		{TopicNetworkUpdate, h.handleNetworkUpdate},
		{TopicNetworkDelete, h.handleNetworkDelete},
		{TopicSubnetCreate, h.handleSubnetCreate},
		{TopicSubnetUpdate, h.handleSubnetUpdate},
		{TopicSubnetDelete, h.handleSubnetDelete},
		{TopicPortCreate, h.handlePortCreate},
		{TopicPortUpdate, h.handlePortUpdate},
		{TopicPortDelete, h.handlePortDelete},
		{TopicRouterCreate, h.handleRouterCreate},
		{TopicRouterUpdate, h.handleRouterUpdate},
		{TopicRouterDelete, h.handleRouterDelete},
		{TopicRouterInterfaceAdd, h.handleRouterInterfaceAdd},
		{TopicRouterInterfaceDel, h.handleRouterInterfaceDel},
		{TopicFloatingIPCreate, h.handleFloatingIPCreate},
		{TopicFloatingIPUpdate, h.handleFloatingIPUpdate},
		{TopicFloatingIPDelete, h.handleFloatingIPDelete},
		{TopicSecGroupCreate, h.handleSecGroupCreate},
		{TopicSecGroupUpdate, h.handleSecGroupUpdate},
		{TopicSecGroupDelete, h.handleSecGroupDelete},
		{TopicSecGroupRuleCreate, h.handleSecGroupRuleCreate},
		{TopicSecGroupRuleDelete, h.handleSecGroupRuleDelete},
		{TopicGatewaySchedule, h.handleGatewaySchedule},
	}

	var result []*nats.Subscription
	for _, s := range subs {
		natsSub, err := nc.QueueSubscribe(s.topic, queueGroup, s.handler)
		if err != nil {
			for _, r := range result {
				_ = r.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s: %w", s.topic, err)
		}
		result = append(result, natsSub)
	}
	slog.Info("Subscribed to lifecycle topics", "topics", len(result))
	return result, nil
}

// decode unmarshals an event payload, logging and responding on failure.
func decode[T any](msg *nats.Msg) (*T, bool) {
	var evt T
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		slog.Error("Failed to unmarshal event", "topic", msg.Subject, "error", err)
		respond(msg, err)
		return nil, false
	}
	return &evt, true
}

// --- Networks ---

func (h *Handler) handleNetworkCreate(msg *nats.Msg) {
	evt, ok := decode[NetworkEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.store.UpsertNetwork(ctx, &evt.Network); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.CreateNetwork(ctx, &evt.Network))
}

func (h *Handler) handleNetworkUpdate(msg *nats.Msg) {
	evt, ok := decode[NetworkEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	original := evt.Original
	if original == nil {
		var err error
		if original, err = h.store.GetNetwork(ctx, evt.Network.ID); err != nil {
			respond(msg, err)
			return
		}
	}
	if err := h.store.UpsertNetwork(ctx, &evt.Network); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.UpdateNetwork(ctx, &evt.Network, original))
}

func (h *Handler) handleNetworkDelete(msg *nats.Msg) {
	evt, ok := decode[NetworkEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.translator.DeleteNetwork(ctx, evt.Network.ID); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.store.DeleteResource(ctx, "network", evt.Network.ID))
}

// --- Subnets ---

func (h *Handler) handleSubnetCreate(msg *nats.Msg) {
	evt, ok := decode[SubnetEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.store.UpsertSubnet(ctx, &evt.Subnet); err != nil {
		respond(msg, err)
		return
	}
	network, err := h.store.GetNetwork(ctx, evt.Subnet.NetworkID)
	if err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.CreateSubnet(ctx, &evt.Subnet, network))
}

func (h *Handler) handleSubnetUpdate(msg *nats.Msg) {
	evt, ok := decode[SubnetEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	original := evt.Original
	if original == nil {
		var err error
		if original, err = h.store.GetSubnet(ctx, evt.Subnet.ID); err != nil {
			respond(msg, err)
			return
		}
	}
	if err := h.store.UpsertSubnet(ctx, &evt.Subnet); err != nil {
		respond(msg, err)
		return
	}
	network, err := h.store.GetNetwork(ctx, evt.Subnet.NetworkID)
	if err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.UpdateSubnet(ctx, &evt.Subnet, original, network))
}

func (h *Handler) handleSubnetDelete(msg *nats.Msg) {
	evt, ok := decode[SubnetEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.translator.DeleteSubnet(ctx, evt.Subnet.ID); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.store.DeleteResource(ctx, "subnet", evt.Subnet.ID))
}

// --- Ports ---

// upsertPort stores a port, tolerating replayed create events.
func (h *Handler) upsertPort(ctx context.Context, port *cloud.Port) error {
	if err := h.store.CreatePort(ctx, port); err != nil {
		return h.store.UpdatePort(ctx, port)
	}
	return nil
}

func (h *Handler) handlePortCreate(msg *nats.Msg) {
	evt, ok := decode[PortEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	// A redelivered create for a known port is handled as an update so the
	// logical port converges instead of colliding.
	if existing, err := h.store.GetPort(ctx, evt.Port.ID); err == nil {
		if err := h.store.UpdatePort(ctx, &evt.Port); err != nil {
			respond(msg, err)
			return
		}
		respond(msg, h.translator.UpdatePort(ctx, &evt.Port, existing))
		return
	}
	if err := h.store.CreatePort(ctx, &evt.Port); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.CreatePort(ctx, &evt.Port))
}

func (h *Handler) handlePortUpdate(msg *nats.Msg) {
	evt, ok := decode[PortEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	original := evt.Original
	if original == nil {
		var err error
		if original, err = h.store.GetPort(ctx, evt.Port.ID); err != nil {
			respond(msg, err)
			return
		}
	}
	if err := h.store.UpdatePort(ctx, &evt.Port); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.UpdatePort(ctx, &evt.Port, original))
}

func (h *Handler) handlePortDelete(msg *nats.Msg) {
	evt, ok := decode[PortEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.translator.DeletePort(ctx, &evt.Port); err != nil {
		respond(msg, err)
		return
	}
	if err := h.store.DeleteResource(ctx, "port", evt.Port.ID); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.clearFloatingIPAssociations(ctx, evt.Port.ID))
}

// clearFloatingIPAssociations resets cached floating IPs that pointed at a
// deleted port, matching the NAT rules removed with it.
func (h *Handler) clearFloatingIPAssociations(ctx context.Context, portID string) error {
	fips, err := h.store.ListFloatingIPs(ctx, cloud.FloatingIPFilter{PortID: portID})
	if err != nil {
		return err
	}
	for _, fip := range fips {
		fip.PortID = ""
		fip.FixedIPAddress = ""
		fip.RouterID = ""
		if err := h.store.UpsertFloatingIP(ctx, fip); err != nil {
			return err
		}
	}
	return nil
}

// --- Routers ---

func (h *Handler) handleRouterCreate(msg *nats.Msg) {
	evt, ok := decode[RouterEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.store.UpsertRouter(ctx, &evt.Router); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.CreateRouter(ctx, &evt.Router))
}

func (h *Handler) handleRouterUpdate(msg *nats.Msg) {
	evt, ok := decode[RouterEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	original := evt.Original
	if original == nil {
		var err error
		if original, err = h.store.GetRouter(ctx, evt.Router.ID); err != nil {
			respond(msg, err)
			return
		}
	}
	if err := h.store.UpsertRouter(ctx, &evt.Router); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.UpdateRouter(ctx, &evt.Router, original))
}

func (h *Handler) handleRouterDelete(msg *nats.Msg) {
	evt, ok := decode[RouterEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.translator.DeleteRouter(ctx, evt.Router.ID); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.store.DeleteResource(ctx, "router", evt.Router.ID))
}

func (h *Handler) handleRouterInterfaceAdd(msg *nats.Msg) {
	evt, ok := decode[RouterInterfaceEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.upsertPort(ctx, &evt.Port); err != nil {
		respond(msg, err)
		return
	}
	router, err := h.store.GetRouter(ctx, evt.RouterID)
	if err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.RouterInterfaceAdded(ctx, router, &evt.Port))
}

func (h *Handler) handleRouterInterfaceDel(msg *nats.Msg) {
	evt, ok := decode[RouterInterfaceEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	router, err := h.store.GetRouter(ctx, evt.RouterID)
	if err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.RouterInterfaceRemoved(ctx, router, evt.Port.ID))
}

// --- Floating IPs ---

func (h *Handler) handleFloatingIPCreate(msg *nats.Msg) {
	evt, ok := decode[FloatingIPEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.store.UpsertFloatingIP(ctx, &evt.FloatingIP); err != nil {
		respond(msg, err)
		return
	}
	if evt.FloatingIP.RouterID == "" {
		// Allocated but not associated yet; nothing to translate.
		respond(msg, nil)
		return
	}
	respond(msg, h.translator.CreateFloatingIP(ctx, &evt.FloatingIP, evt.FloatingIP.RouterID))
}

func (h *Handler) handleFloatingIPUpdate(msg *nats.Msg) {
	evt, ok := decode[FloatingIPEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.store.UpsertFloatingIP(ctx, &evt.FloatingIP); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.UpdateFloatingIP(ctx, &evt.FloatingIP, evt.FloatingIP.RouterID, evt.Associate))
}

func (h *Handler) handleFloatingIPDelete(msg *nats.Msg) {
	evt, ok := decode[FloatingIPEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if evt.FloatingIP.RouterID != "" {
		if err := h.translator.DeleteFloatingIP(ctx, &evt.FloatingIP, evt.FloatingIP.RouterID); err != nil {
			respond(msg, err)
			return
		}
	}
	respond(msg, h.store.DeleteResource(ctx, "floatingip", evt.FloatingIP.ID))
}

// --- Security groups ---

func (h *Handler) handleSecGroupCreate(msg *nats.Msg) {
	evt, ok := decode[SecurityGroupEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.store.UpsertSecurityGroup(ctx, &evt.SecurityGroup); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.CreateSecurityGroup(ctx, &evt.SecurityGroup))
}

func (h *Handler) handleSecGroupUpdate(msg *nats.Msg) {
	evt, ok := decode[SecurityGroupEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.store.UpsertSecurityGroup(ctx, &evt.SecurityGroup); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.UpdateSecurityGroup(ctx, &evt.SecurityGroup))
}

func (h *Handler) handleSecGroupDelete(msg *nats.Msg) {
	evt, ok := decode[SecurityGroupEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.translator.DeleteSecurityGroup(ctx, &evt.SecurityGroup); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.store.DeleteResource(ctx, "security_group", evt.SecurityGroup.ID))
}

func (h *Handler) handleSecGroupRuleCreate(msg *nats.Msg) {
	evt, ok := decode[SecurityGroupRuleEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.syncGroupRules(ctx, &evt.Rule, true); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.translator.CreateSecurityGroupRule(ctx, &evt.Rule))
}

func (h *Handler) handleSecGroupRuleDelete(msg *nats.Msg) {
	evt, ok := decode[SecurityGroupRuleEvent](msg)
	if !ok {
		return
	}
	ctx := context.Background()
	if err := h.translator.DeleteSecurityGroupRule(ctx, &evt.Rule); err != nil {
		respond(msg, err)
		return
	}
	respond(msg, h.syncGroupRules(ctx, &evt.Rule, false))
}

// syncGroupRules updates the cached security group's rule list.
func (h *Handler) syncGroupRules(ctx context.Context, rule *cloud.SecurityGroupRule, add bool) error {
	sg, err := h.store.GetSecurityGroup(ctx, rule.SecurityGroupID)
	if err != nil {
		return err
	}
	kept := make([]cloud.SecurityGroupRule, 0, len(sg.Rules))
	for _, r := range sg.Rules {
		if r.ID != rule.ID {
			kept = append(kept, r)
		}
	}
	sg.Rules = kept
	if add {
		sg.Rules = append(sg.Rules, *rule)
	}
	return h.store.UpsertSecurityGroup(ctx, sg)
}

// --- Gateway scheduling ---

func (h *Handler) handleGatewaySchedule(msg *nats.Msg) {
	respond(msg, h.translator.ScheduleUnhostedGateways(context.Background()))
}

// respond sends a simple JSON response to a NATS request. Fire-and-forget
// messages get none.
func respond(msg *nats.Msg, err error) {
	if msg.Reply == "" {
		return
	}

	type response struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}

	resp := response{Success: true}
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
	}

	data, _ := json.Marshal(resp)
	if err := msg.Respond(data); err != nil {
		slog.Error("Failed to respond to NATS request", "error", err)
	}
}
