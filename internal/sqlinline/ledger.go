package sqlinline

const QDebitUser = `--sql 3fc6cd26-2910-468a-a2cc-ac1b04390b13
update users
set credits = credits - $2::bigint,
    updated_at = now()
where id = $1::uuid
  and credits >= $2::bigint
returning credits;
`

const QCreditUser = `--sql b032bccf-01b8-43c8-8520-259fca687537
update users
set credits = credits + $2::bigint,
    updated_at = now()
where id = $1::uuid
returning credits;
`

const QInsertLedgerEntry = `--sql 737e5c3f-9e5a-444f-9daf-fed99acd740c
insert into credit_ledger(
  id,
  user_id,
  amount,
  balance_after,
  kind,
  related_job_id,
  reference,
  note,
  created_at
) values (
  gen_random_uuid(),
  $1::uuid,
  $2::bigint,
  $3::bigint,
  $4::text,
  nullif($5::text, '')::uuid,
  nullif($6::text, ''),
  $7::text,
  now()
) returning id, created_at;
`

const QLedgerReferenceExists = `--sql 735630ed-4524-4b7d-b5c6-70ba7464e199
select exists(
  select 1 from credit_ledger where reference = $1::text
);
`

// QFlagJobRefunded is the refund gate: refunded flips false->true once, and
// only for failed jobs that were actually charged.
const QFlagJobRefunded = `--sql a0c0a07e-9368-4b01-8f09-b7d98fdde028
update generation_jobs
set refunded = true,
    updated_at = now()
where id = $1::uuid
  and status = 'failed'
  and refunded = false
  and credits_charged > 0
returning user_id, credits_charged;
`

const QSelectBalance = `--sql 87ad82e5-702e-46b8-96b8-f45dcb1dd66d
select credits from users where id = $1::uuid;
`

const QListLedgerEntries = `--sql 3561a216-7d16-40d9-92ac-942b43ff1061
select id, user_id, amount, balance_after, kind, coalesce(related_job_id::text, ''),
       coalesce(reference, ''), note, created_at
from credit_ledger
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

const QListLedgerEntriesForJob = `--sql 7fd180ae-b261-4fed-be8f-92766f5a4980
select id, user_id, amount, balance_after, kind, coalesce(related_job_id::text, ''),
       coalesce(reference, ''), note, created_at
from credit_ledger
where related_job_id = $1::uuid
order by created_at asc;
`
