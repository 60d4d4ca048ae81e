package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// Adapter wraps a gsrpc SubstrateAPI client with the narrow surface the
// indexer needs. It is constructed via Dial, which blocks with a 6 second
// retry loop until the node answers (§4.2/§7).
type Adapter struct {
	url string
	api *gsrpc.SubstrateAPI
	sub *gsrpc.SubstrateAPI // kept distinct only conceptually; same client
}

// Dial connects to url, retrying every 6 seconds until it succeeds or ctx is
// cancelled.
func Dial(ctx context.Context, url string) (*Adapter, error) {
	for {
		api, err := gsrpc.NewSubstrateAPI(url)
		if err == nil {
			return &Adapter{url: url, api: api}, nil
		}
		slog.Warn("chain: connect failed, retrying", "url", url, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(6 * time.Second):
		}
	}
}

// Properties returns the chain's system properties and name.
func (a *Adapter) Properties() (Properties, error) {
	sysProps, err := a.api.RPC.System.Properties()
	if err != nil {
		return Properties{}, fmt.Errorf("chain: system properties: %w", err)
	}
	chainName, err := a.api.RPC.System.Chain()
	if err != nil {
		return Properties{}, fmt.Errorf("chain: system chain: %w", err)
	}
	return Properties{
		ChainName:     string(chainName),
		TokenSymbol:   firstOr(sysProps.TokenSymbol, "UNIT"),
		TokenDecimals: firstDecimalsOr(sysProps.TokenDecimals, 12),
		SS58Format:    uint32(sysProps.SS58Format),
	}, nil
}

func firstOr(symbols []string, def string) string {
	if len(symbols) == 0 {
		return def
	}
	return symbols[0]
}

func firstDecimalsOr(decimals []int, def uint32) uint32 {
	if len(decimals) == 0 {
		return def
	}
	return uint32(decimals[0])
}

// ActiveEra returns the current active era index.
func (a *Adapter) ActiveEra() (uint32, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return 0, fmt.Errorf("chain: metadata: %w", err)
	}
	key, err := types.CreateStorageKey(meta, "Staking", "ActiveEra", nil)
	if err != nil {
		return 0, fmt.Errorf("chain: active era key: %w", err)
	}
	var info struct {
		Index uint32
		Start types.OptionU64
	}
	ok, err := a.api.RPC.State.GetStorageLatest(key, &info)
	if err != nil {
		return 0, fmt.Errorf("chain: active era query: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("chain: active era not set")
	}
	return info.Index, nil
}

// HistoryDepth returns the Staking pallet's configured HistoryDepth.
func (a *Adapter) HistoryDepth() (uint32, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return 0, fmt.Errorf("chain: metadata: %w", err)
	}
	key, err := types.CreateStorageKey(meta, "Staking", "HistoryDepth", nil)
	if err != nil {
		return 0, fmt.Errorf("chain: history depth key: %w", err)
	}
	var depth types.U32
	ok, err := a.api.RPC.State.GetStorageLatest(key, &depth)
	if err != nil {
		return 0, fmt.Errorf("chain: history depth query: %w", err)
	}
	if !ok {
		return 84, nil
	}
	return uint32(depth), nil
}

// SessionValidators returns the current session's active validator set.
func (a *Adapter) SessionValidators() ([]string, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("chain: metadata: %w", err)
	}
	key, err := types.CreateStorageKey(meta, "Session", "Validators", nil)
	if err != nil {
		return nil, fmt.Errorf("chain: session validators key: %w", err)
	}
	var validators []types.AccountID
	ok, err := a.api.RPC.State.GetStorageLatest(key, &validators)
	if err != nil {
		return nil, fmt.Errorf("chain: session validators query: %w", err)
	}
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(validators))
	for _, v := range validators {
		out = append(out, accountIDToStash(v))
	}
	return out, nil
}

// ValidatorItem is one element of ValidatorsIter.
type ValidatorItem struct {
	Stash string
	Prefs ValidatorPrefs
	Err   error
}

// ValidatorsIter lazily streams every stash currently present in
// Staking.Validators, along with its commission preferences.
func (a *Adapter) ValidatorsIter(ctx context.Context) <-chan ValidatorItem {
	out := make(chan ValidatorItem)
	go func() {
		defer close(out)
		meta, err := a.api.RPC.State.GetMetadataLatest()
		if err != nil {
			out <- ValidatorItem{Err: fmt.Errorf("chain: metadata: %w", err)}
			return
		}
		prefix, err := types.CreateStorageKey(meta, "Staking", "Validators", nil)
		if err != nil {
			out <- ValidatorItem{Err: fmt.Errorf("chain: validators prefix: %w", err)}
			return
		}
		keys, err := a.api.RPC.State.GetKeysLatest(prefix)
		if err != nil {
			out <- ValidatorItem{Err: fmt.Errorf("chain: validators keys: %w", err)}
			return
		}
		for _, key := range keys {
			select {
			case <-ctx.Done():
				out <- ValidatorItem{Err: ctx.Err()}
				return
			default:
			}
			var prefs struct {
				Commission uint32
				Blocked    bool
			}
			ok, err := a.api.RPC.State.GetStorageLatest(key, &prefs)
			if err != nil || !ok {
				continue
			}
			stash := stashFromStorageKey(key)
			out <- ValidatorItem{Stash: stash, Prefs: ValidatorPrefs{Commission: prefs.Commission, Blocked: prefs.Blocked}}
		}
	}()
	return out
}

// NominatorItem is one element of NominatorsIter.
type NominatorItem struct {
	Stash   string
	Targets []string
	Err     error
}

// NominatorsIter lazily streams every stash currently present in
// Staking.Nominators, along with its nomination targets.
func (a *Adapter) NominatorsIter(ctx context.Context) <-chan NominatorItem {
	out := make(chan NominatorItem)
	go func() {
		defer close(out)
		meta, err := a.api.RPC.State.GetMetadataLatest()
		if err != nil {
			out <- NominatorItem{Err: fmt.Errorf("chain: metadata: %w", err)}
			return
		}
		prefix, err := types.CreateStorageKey(meta, "Staking", "Nominators", nil)
		if err != nil {
			out <- NominatorItem{Err: fmt.Errorf("chain: nominators prefix: %w", err)}
			return
		}
		keys, err := a.api.RPC.State.GetKeysLatest(prefix)
		if err != nil {
			out <- NominatorItem{Err: fmt.Errorf("chain: nominators keys: %w", err)}
			return
		}
		for _, key := range keys {
			select {
			case <-ctx.Done():
				out <- NominatorItem{Err: ctx.Err()}
				return
			default:
			}
			var nominations struct {
				Targets []types.AccountID
			}
			ok, err := a.api.RPC.State.GetStorageLatest(key, &nominations)
			if err != nil || !ok {
				continue
			}
			targets := make([]string, 0, len(nominations.Targets))
			for _, t := range nominations.Targets {
				targets = append(targets, accountIDToStash(t))
			}
			out <- NominatorItem{Stash: stashFromStorageKey(key), Targets: targets}
		}
	}()
	return out
}

// Bonded returns the controller bonded to stash, if any.
func (a *Adapter) Bonded(stash string) (string, bool, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return "", false, fmt.Errorf("chain: metadata: %w", err)
	}
	accountID, err := accountIDFromStash(stash)
	if err != nil {
		return "", false, err
	}
	key, err := types.CreateStorageKey(meta, "Staking", "Bonded", accountID[:])
	if err != nil {
		return "", false, fmt.Errorf("chain: bonded key: %w", err)
	}
	var controller types.AccountID
	ok, err := a.api.RPC.State.GetStorageLatest(key, &controller)
	if err != nil {
		return "", false, fmt.Errorf("chain: bonded query: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return accountIDToStash(controller), true, nil
}

// Ledger returns the bonding ledger for controller, if any.
func (a *Adapter) Ledger(controller string) (Ledger, bool, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return Ledger{}, false, fmt.Errorf("chain: metadata: %w", err)
	}
	accountID, err := accountIDFromStash(controller)
	if err != nil {
		return Ledger{}, false, err
	}
	key, err := types.CreateStorageKey(meta, "Staking", "Ledger", accountID[:])
	if err != nil {
		return Ledger{}, false, fmt.Errorf("chain: ledger key: %w", err)
	}
	var ledger struct {
		Stash  types.AccountID
		Total  types.U128
		Active types.U128
	}
	ok, err := a.api.RPC.State.GetStorageLatest(key, &ledger)
	if err != nil {
		return Ledger{}, false, fmt.Errorf("chain: ledger query: %w", err)
	}
	if !ok {
		return Ledger{}, false, nil
	}
	return Ledger{Active: ledger.Active.String()}, true, nil
}

// Payee returns the reward destination for stash.
func (a *Adapter) Payee(stash string) (RewardDestination, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return RewardDestinationOther, fmt.Errorf("chain: metadata: %w", err)
	}
	accountID, err := accountIDFromStash(stash)
	if err != nil {
		return RewardDestinationOther, err
	}
	key, err := types.CreateStorageKey(meta, "Staking", "Payee", accountID[:])
	if err != nil {
		return RewardDestinationOther, fmt.Errorf("chain: payee key: %w", err)
	}
	var payee struct {
		IsStaked bool
	}
	_, err = a.api.RPC.State.GetStorageLatest(key, &payee)
	if err != nil {
		return RewardDestinationOther, fmt.Errorf("chain: payee query: %w", err)
	}
	if payee.IsStaked {
		return RewardDestinationStaked, nil
	}
	return RewardDestinationOther, nil
}

// EraValidatorReward returns the total reward paid for era, if any.
func (a *Adapter) EraValidatorReward(era uint32) (string, bool, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return "", false, fmt.Errorf("chain: metadata: %w", err)
	}
	key, err := types.CreateStorageKey(meta, "Staking", "ErasValidatorReward", types.NewU32(era).Encode)
	if err != nil {
		return "", false, fmt.Errorf("chain: era reward key: %w", err)
	}
	var reward types.U128
	ok, err := a.api.RPC.State.GetStorageLatest(key, &reward)
	if err != nil {
		return "", false, fmt.Errorf("chain: era reward query: %w", err)
	}
	if !ok {
		return "0", false, nil
	}
	return reward.String(), true, nil
}

// EraTotalStake returns the total stake bonded for era.
func (a *Adapter) EraTotalStake(era uint32) (string, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return "", fmt.Errorf("chain: metadata: %w", err)
	}
	key, err := types.CreateStorageKey(meta, "Staking", "ErasTotalStake", types.NewU32(era).Encode)
	if err != nil {
		return "", fmt.Errorf("chain: era total stake key: %w", err)
	}
	var stake types.U128
	ok, err := a.api.RPC.State.GetStorageLatest(key, &stake)
	if err != nil {
		return "", fmt.Errorf("chain: era total stake query: %w", err)
	}
	if !ok {
		return "0", nil
	}
	return stake.String(), nil
}

// EraRewardPoints returns the per-validator reward points recorded for era.
func (a *Adapter) EraRewardPoints(era uint32) (EraRewardPoints, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return EraRewardPoints{}, fmt.Errorf("chain: metadata: %w", err)
	}
	key, err := types.CreateStorageKey(meta, "Staking", "ErasRewardPoints", types.NewU32(era).Encode)
	if err != nil {
		return EraRewardPoints{}, fmt.Errorf("chain: era points key: %w", err)
	}
	var points struct {
		Total      uint32
		Individual []struct {
			Who    types.AccountID
			Points uint32
		}
	}
	ok, err := a.api.RPC.State.GetStorageLatest(key, &points)
	if err != nil {
		return EraRewardPoints{}, fmt.Errorf("chain: era points query: %w", err)
	}
	if !ok {
		return EraRewardPoints{}, nil
	}
	out := EraRewardPoints{Total: points.Total}
	for _, ind := range points.Individual {
		out.Individual = append(out.Individual, ValidatorPoints{Stash: accountIDToStash(ind.Who), Points: ind.Points})
	}
	return out, nil
}

// EraValidatorPrefs returns a validator's commission/blocked state as
// recorded for era (may differ from the live value in Staking.Validators).
func (a *Adapter) EraValidatorPrefs(era uint32, stash string) (ValidatorPrefs, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return ValidatorPrefs{}, fmt.Errorf("chain: metadata: %w", err)
	}
	accountID, err := accountIDFromStash(stash)
	if err != nil {
		return ValidatorPrefs{}, err
	}
	key, err := types.CreateStorageKey(meta, "Staking", "ErasValidatorPrefs", types.NewU32(era).Encode, accountID[:])
	if err != nil {
		return ValidatorPrefs{}, fmt.Errorf("chain: era prefs key: %w", err)
	}
	var prefs struct {
		Commission uint32
		Blocked    bool
	}
	_, err = a.api.RPC.State.GetStorageLatest(key, &prefs)
	if err != nil {
		return ValidatorPrefs{}, fmt.Errorf("chain: era prefs query: %w", err)
	}
	return ValidatorPrefs{Commission: prefs.Commission, Blocked: prefs.Blocked}, nil
}

// ErasStakers returns the full (unclipped) exposure for stash in era.
func (a *Adapter) ErasStakers(era uint32, stash string) (Exposure, error) {
	return a.exposure(era, stash, "ErasStakers")
}

// ErasStakersClipped returns the payout-relevant exposure (top 256 nominators).
func (a *Adapter) ErasStakersClipped(era uint32, stash string) (Exposure, error) {
	return a.exposure(era, stash, "ErasStakersClipped")
}

func (a *Adapter) exposure(era uint32, stash, storageItem string) (Exposure, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return Exposure{}, fmt.Errorf("chain: metadata: %w", err)
	}
	accountID, err := accountIDFromStash(stash)
	if err != nil {
		return Exposure{}, err
	}
	key, err := types.CreateStorageKey(meta, "Staking", storageItem, types.NewU32(era).Encode, accountID[:])
	if err != nil {
		return Exposure{}, fmt.Errorf("chain: %s key: %w", storageItem, err)
	}
	var exposure struct {
		Total  types.U128
		Own    types.U128
		Others []struct {
			Who   types.AccountID
			Value types.U128
		}
	}
	ok, err := a.api.RPC.State.GetStorageLatest(key, &exposure)
	if err != nil {
		return Exposure{}, fmt.Errorf("chain: %s query: %w", storageItem, err)
	}
	if !ok {
		return Exposure{Total: "0", Own: "0"}, nil
	}
	out := Exposure{Total: exposure.Total.String(), Own: exposure.Own.String()}
	for _, o := range exposure.Others {
		out.Others = append(out.Others, IndividualExposure{Stash: accountIDToStash(o.Who), Value: o.Value.String()})
	}
	return out, nil
}

// SubscribeFinalized subscribes to finalized blocks and emits EraPaid events
// extracted from each block's System.Events. Restart-on-error is the caller's
// responsibility (§5 Task S).
func (a *Adapter) SubscribeFinalized(ctx context.Context) (<-chan EraPaid, error) {
	sub, err := a.api.RPC.Chain.SubscribeFinalizedHeads()
	if err != nil {
		return nil, fmt.Errorf("chain: subscribe finalized heads: %w", err)
	}
	out := make(chan EraPaid)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case head, ok := <-sub.Chan():
				if !ok {
					return
				}
				paid, err := a.eraPaidAt(head.Number)
				if err != nil {
					slog.Warn("chain: reading events at finalized head failed", "error", err)
					continue
				}
				for _, p := range paid {
					select {
					case out <- p:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func (a *Adapter) eraPaidAt(blockNumber types.BlockNumber) ([]EraPaid, error) {
	hash, err := a.api.RPC.Chain.GetBlockHash(uint64(blockNumber))
	if err != nil {
		return nil, fmt.Errorf("block hash: %w", err)
	}
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	key, err := types.CreateStorageKey(meta, "System", "Events", nil)
	if err != nil {
		return nil, fmt.Errorf("events key: %w", err)
	}
	raw, err := a.api.RPC.State.GetStorageRaw(key, hash)
	if err != nil {
		return nil, fmt.Errorf("events query: %w", err)
	}
	var events types.EventRecords
	if err := types.EventRecordsRaw(*raw).DecodeEventRecords(meta, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	var out []EraPaid
	for _, e := range events.Staking_EraPaid {
		out = append(out, EraPaid{EraIndex: uint32(e.EraIndex)})
	}
	return out, nil
}

// IdentityOf resolves a stash's on-chain identity, following at most one
// sub-account hop (§4.2).
func (a *Adapter) IdentityOf(stash string) (Identity, bool, error) {
	id, ok, err := a.identityOfRaw(stash)
	if err != nil {
		return Identity{}, false, err
	}
	if ok {
		return id, true, nil
	}

	parent, subName, ok, err := a.superOf(stash)
	if err != nil || !ok {
		return Identity{}, false, err
	}
	parentID, ok, err := a.identityOfRaw(parent)
	if err != nil || !ok {
		return Identity{}, false, err
	}
	return Identity{
		Display:     parentID.Display + "/" + subName,
		Judgements:  parentID.Judgements,
		SubAccounts: parentID.SubAccounts,
	}, true, nil
}

func (a *Adapter) identityOfRaw(stash string) (Identity, bool, error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return Identity{}, false, fmt.Errorf("chain: metadata: %w", err)
	}
	accountID, err := accountIDFromStash(stash)
	if err != nil {
		return Identity{}, false, err
	}
	key, err := types.CreateStorageKey(meta, "Identity", "IdentityOf", accountID[:])
	if err != nil {
		return Identity{}, false, fmt.Errorf("chain: identity key: %w", err)
	}
	var registration struct {
		Judgements []struct {
			Index     uint32
			Judgement struct {
				IsReasonable bool
				IsKnownGood  bool
			}
		}
		Info struct {
			Display struct {
				IsRaw bool
				AsRaw []byte
			}
		}
		SubAccountsCount uint32
	}
	ok, err := a.api.RPC.State.GetStorageLatest(key, &registration)
	if err != nil {
		return Identity{}, false, fmt.Errorf("chain: identity query: %w", err)
	}
	if !ok {
		return Identity{}, false, nil
	}
	var judgements uint32
	for _, j := range registration.Judgements {
		if j.Judgement.IsReasonable || j.Judgement.IsKnownGood {
			judgements++
		}
	}
	display := ""
	if registration.Info.Display.IsRaw {
		display = decodeIdentityBytes(registration.Info.Display.AsRaw)
	}
	return Identity{Display: display, Judgements: judgements, SubAccounts: registration.SubAccountsCount}, true, nil
}

func (a *Adapter) superOf(stash string) (parent string, subName string, ok bool, err error) {
	meta, err := a.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return "", "", false, fmt.Errorf("chain: metadata: %w", err)
	}
	accountID, err := accountIDFromStash(stash)
	if err != nil {
		return "", "", false, err
	}
	key, keyErr := types.CreateStorageKey(meta, "Identity", "SuperOf", accountID[:])
	if keyErr != nil {
		return "", "", false, fmt.Errorf("chain: super-of key: %w", keyErr)
	}
	var superOf struct {
		Parent types.AccountID
		Data   struct {
			IsRaw bool
			AsRaw []byte
		}
	}
	found, getErr := a.api.RPC.State.GetStorageLatest(key, &superOf)
	if getErr != nil {
		return "", "", false, fmt.Errorf("chain: super-of query: %w", getErr)
	}
	if !found {
		return "", "", false, nil
	}
	name := ""
	if superOf.Data.IsRaw {
		name = decodeIdentityBytes(superOf.Data.AsRaw)
	}
	return accountIDToStash(superOf.Parent), name, true, nil
}

// decodeIdentityBytes decodes raw identity field bytes as UTF-8, dropping
// non-printable runes (§9d replaces the original's by-length enum match).
func decodeIdentityBytes(raw []byte) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, string(raw))
}

func stashFromStorageKey(key types.StorageKey) string {
	if len(key) < 32 {
		return ""
	}
	var accountID types.AccountID
	copy(accountID[:], key[len(key)-32:])
	return accountIDToStash(accountID)
}

func accountIDFromStash(stash string) (types.AccountID, error) {
	return types.NewAccountIDFromHexString(stash)
}

func accountIDToStash(id types.AccountID) string {
	return id.ToHexString()
}
