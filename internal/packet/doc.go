// Package packet implements the signed, optionally encrypted records that
// make up a bulletin.
//
// A packet is addressed by a UniversalID (author account + local id) and is
// persisted under a DatabaseKey, which adds the draft/sealed status. The
// kinds are modelled as one tagged struct:
//
//   - KindHeader: status, all-private flag, optional HQ key, the ids and
//     signatures of the two field-data packets, and the attachment id sets.
//   - KindPublicData / KindPrivateData: an ordered list of named fields,
//     stored in clear text or encrypted under a session key.
//   - KindAttachment: an encrypted binary blob with its label.
//
// # Wire format
//
// A persisted packet is a deterministic XML body followed by a signature
// trailer:
//
//	<BulletinHeaderPacket>
//	<PacketId>B-...</PacketId>
//	<AccountId>...</AccountId>
//	...
//	</BulletinHeaderPacket>
//	<!--sig=BASE64-->
//
// The signature covers the body bytes exactly, so element order is fixed
// per kind and attachment id lists are written sorted.
package packet
